package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"cartengine/internal/cart"
	"cartengine/internal/domain"
)

const ctxIdentifier = "cartIdentifier"

type cartHandlers struct {
	deps Deps
}

func (h *cartHandlers) cartFor(c *gin.Context) *cart.Cart {
	identifier := c.GetString(ctxIdentifier)
	return h.deps.Carts.Cart(identifier).SetInstance(c.Param("instance"))
}

func (h *cartHandlers) issueGuestToken(c *gin.Context) {
	access, refresh, guestID, err := h.deps.Guests.Issue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"accessToken":  access,
		"refreshToken": refresh,
		"guestId":      guestID,
		"expiresIn":    h.deps.Guests.AccessTTLSeconds(),
	})
}

func (h *cartHandlers) viewCart(c *gin.Context) {
	view, err := h.renderCart(c, h.cartFor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *cartHandlers) clearCart(c *gin.Context) {
	if err := h.cartFor(c).Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type addItemRequest struct {
	ID              string                 `json:"id" binding:"required"`
	Name            string                 `json:"name" binding:"required"`
	Price           decimal.Decimal        `json:"price"`
	Quantity        int                    `json:"quantity" binding:"required"`
	Attributes      map[string]interface{} `json:"attributes"`
	AssociatedModel string                 `json:"associatedModel"`
}

func (h *cartHandlers) addItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.cartFor(c).Add(c.Request.Context(), domain.CartItem{
		ID:              req.ID,
		Name:            req.Name,
		Price:           req.Price,
		Quantity:        req.Quantity,
		Attributes:      req.Attributes,
		AssociatedModel: req.AssociatedModel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": h.itemView(item, nil)})
}

type quantityChangeRequest struct {
	Relative bool `json:"relative"`
	Value    int  `json:"value"`
}

type updateItemRequest struct {
	Name            *string                `json:"name"`
	Price           *decimal.Decimal       `json:"price"`
	Quantity        *quantityChangeRequest `json:"quantity"`
	Attributes      map[string]interface{} `json:"attributes"`
	AssociatedModel *string                `json:"associatedModel"`
}

func (h *cartHandlers) updateItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	change := cart.ItemUpdate{
		Name:            req.Name,
		Price:           req.Price,
		Attributes:      req.Attributes,
		AssociatedModel: req.AssociatedModel,
	}
	if req.Quantity != nil {
		change.Quantity = &cart.QuantityChange{Relative: req.Quantity.Relative, Value: req.Quantity.Value}
	}
	item, err := h.cartFor(c).Update(c.Request.Context(), c.Param("id"), change)
	if err != nil {
		writeError(c, err)
		return
	}
	if item == nil {
		// Documented no-op on a missing item.
		c.JSON(http.StatusOK, gin.H{"item": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": h.itemView(*item, nil)})
}

func (h *cartHandlers) removeItem(c *gin.Context) {
	item, err := h.cartFor(c).Remove(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusOK, gin.H{"item": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": h.itemView(*item, nil)})
}

type conditionRequest struct {
	Name       string                 `json:"name" binding:"required"`
	Type       string                 `json:"type" binding:"required"`
	Target     string                 `json:"target" binding:"required"`
	Value      string                 `json:"value" binding:"required"`
	Order      int                    `json:"order"`
	Attributes map[string]interface{} `json:"attributes"`
	Rules      []domain.Rule          `json:"rules"`
}

func (r conditionRequest) toCondition() domain.CartCondition {
	return domain.CartCondition{
		Name:       r.Name,
		Type:       r.Type,
		Target:     domain.ConditionTarget(r.Target),
		Value:      r.Value,
		Order:      r.Order,
		Attributes: r.Attributes,
		Rules:      r.Rules,
	}
}

func (h *cartHandlers) addCondition(c *gin.Context) {
	var req conditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cond := req.toCondition()
	crt := h.cartFor(c)
	var err error
	if cond.IsDynamic() {
		err = crt.RegisterDynamicCondition(c.Request.Context(), cond)
	} else {
		err = crt.AddCondition(c.Request.Context(), cond)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"condition": conditionView(cond)})
}

func (h *cartHandlers) removeCondition(c *gin.Context) {
	if err := h.cartFor(c).RemoveCondition(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *cartHandlers) addItemCondition(c *gin.Context) {
	var req conditionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cond := req.toCondition()
	if err := h.cartFor(c).AddItemCondition(c.Request.Context(), c.Param("id"), cond); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"condition": conditionView(cond)})
}

func (h *cartHandlers) removeItemCondition(c *gin.Context) {
	if err := h.cartFor(c).RemoveItemCondition(c.Request.Context(), c.Param("id"), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type metadataRequest struct {
	Value interface{} `json:"value"`
}

func (h *cartHandlers) putMetadata(c *gin.Context) {
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cartFor(c).SetMetadata(c.Request.Context(), c.Param("key"), req.Value); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *cartHandlers) deleteMetadata(c *gin.Context) {
	if err := h.cartFor(c).RemoveMetadata(c.Request.Context(), c.Param("key")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type voucherRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *cartHandlers) applyVoucher(c *gin.Context) {
	var req voucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cond, err := h.deps.Vouchers.Apply(c.Request.Context(), h.cartFor(c), req.Code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"condition": conditionView(cond)})
}

func (h *cartHandlers) releaseVoucher(c *gin.Context) {
	if err := h.deps.Vouchers.Release(c.Request.Context(), h.cartFor(c), c.Param("code")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type mergeRequest struct {
	UserIdentifier string `json:"userIdentifier" binding:"required"`
}

// mergeCart reconciles the current (guest) cart into the given user cart,
// the login-time migration.
func (h *cartHandlers) mergeCart(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	guestIdentifier := c.GetString(ctxIdentifier)
	migrated, err := h.deps.Carts.MigrateGuestCartToUser(c.Request.Context(), guestIdentifier, req.UserIdentifier)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"migrated": migrated})
}
