package httpserver

import (
	"github.com/gin-gonic/gin"

	"cartengine/internal/cart"
	"cartengine/internal/domain"
)

type cartView struct {
	ID         string                 `json:"id"`
	Identifier string                 `json:"identifier"`
	Instance   string                 `json:"instance"`
	Items      []itemView             `json:"items"`
	Conditions []conditionView2       `json:"conditions"`
	Metadata   map[string]interface{} `json:"metadata"`
	Subtotal   string                 `json:"subtotal"`
	Total      string                 `json:"total"`
	Currency   string                 `json:"currency"`
	Version    int64                  `json:"version"`
}

type itemView struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	Price           string                 `json:"price"`
	Quantity        int                    `json:"quantity"`
	Subtotal        string                 `json:"subtotal"`
	Attributes      map[string]interface{} `json:"attributes,omitempty"`
	AssociatedModel string                 `json:"associatedModel,omitempty"`
	Conditions      []conditionView2       `json:"conditions,omitempty"`
}

type conditionView2 struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Target     string                 `json:"target"`
	Value      string                 `json:"value"`
	Order      int                    `json:"order"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func conditionView(cond domain.CartCondition) conditionView2 {
	return conditionView2{
		Name:       cond.Name,
		Type:       cond.Type,
		Target:     string(cond.Target),
		Value:      cond.Value,
		Order:      cond.Order,
		Attributes: cond.Attributes,
	}
}

func conditionViews(conds []domain.CartCondition) []conditionView2 {
	out := make([]conditionView2, 0, len(conds))
	for _, cond := range conds {
		out = append(out, conditionView(cond))
	}
	return out
}

func (h *cartHandlers) itemView(item domain.CartItem, conds []domain.CartCondition) itemView {
	precision := h.deps.Format.Precision
	return itemView{
		ID:              item.ID,
		Name:            item.Name,
		Price:           item.Price.StringFixed(precision),
		Quantity:        item.Quantity,
		Subtotal:        item.Subtotal().StringFixed(precision),
		Attributes:      item.Attributes,
		AssociatedModel: item.AssociatedModel,
		Conditions:      conditionViews(conds),
	}
}

func (h *cartHandlers) renderCart(c *gin.Context, crt *cart.Cart) (cartView, error) {
	ctx := c.Request.Context()

	items, err := crt.Items(ctx)
	if err != nil {
		return cartView{}, err
	}
	conds, err := crt.Conditions(ctx)
	if err != nil {
		return cartView{}, err
	}
	meta, err := crt.AllMetadata(ctx)
	if err != nil {
		return cartView{}, err
	}
	subtotal, err := crt.Subtotal(ctx)
	if err != nil {
		return cartView{}, err
	}
	total, err := crt.Total(ctx)
	if err != nil {
		return cartView{}, err
	}
	version, _, err := crt.Version(ctx)
	if err != nil {
		return cartView{}, err
	}
	id, err := crt.ID(ctx)
	if err != nil {
		return cartView{}, err
	}

	views := make([]itemView, 0, len(items))
	for _, item := range items {
		itemConds, err := crt.ItemConditions(ctx, item.ID)
		if err != nil {
			return cartView{}, err
		}
		views = append(views, h.itemView(item, itemConds))
	}

	precision := h.deps.Format.Precision
	return cartView{
		ID:         id,
		Identifier: crt.Identifier(),
		Instance:   crt.Instance(),
		Items:      views,
		Conditions: conditionViews(conds),
		Metadata:   meta,
		Subtotal:   subtotal.StringFixed(precision),
		Total:      total.StringFixed(precision),
		Currency:   crt.Currency(),
		Version:    version,
	}, nil
}
