package migration

import (
	"context"
	"fmt"
	"io"
	"log"

	"cartengine/internal/cart"
	"cartengine/internal/config"
	"cartengine/internal/domain"
	"cartengine/internal/storage"
)

// Service reconciles guest carts into user carts at login and backs user
// carts up at logout. Conflicts are resolved per item id by the configured
// strategy; there is no whole-cart replace.
type Service struct {
	store      storage.Store
	dispatcher domain.Dispatcher
	opts       cart.Options
	strategy   string
	logger     *log.Logger
}

func New(store storage.Store, dispatcher domain.Dispatcher, opts cart.Options, strategy string, logger *log.Logger) *Service {
	if strategy == "" {
		strategy = config.MergeAddQuantities
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		strategy:   strategy,
		logger:     logger,
	}
}

// Cart returns a handle bound to the given identifier.
func (s *Service) Cart(identifier string) *cart.Cart {
	return cart.New(s.store, s.dispatcher, identifier, s.opts)
}

// ActiveCart picks the cart for the current auth state: the user-scoped
// cart when authenticated, the session-scoped guest cart otherwise.
func (s *Service) ActiveCart(authenticated bool, userIdentifier, sessionIdentifier string) *cart.Cart {
	if authenticated {
		return s.Cart(userIdentifier)
	}
	return s.Cart(sessionIdentifier)
}

// MigrateGuestCartToUser merges the guest cart into the user cart and
// clears the guest cart. Returns false without side effects when the guest
// cart is empty. When the user has no cart at all the whole guest cart is
// renamed in storage instead of copied item by item.
func (s *Service) MigrateGuestCartToUser(ctx context.Context, guestIdentifier, userIdentifier string) (bool, error) {
	guest := s.Cart(guestIdentifier)
	guestItems, err := guest.Items(ctx)
	if err != nil {
		return false, fmt.Errorf("read guest cart: %w", err)
	}
	if len(guestItems) == 0 {
		return false, nil
	}

	userHas, err := s.store.Has(ctx, userIdentifier, guest.Instance())
	if err != nil {
		return false, err
	}
	if !userHas {
		swapped, err := s.store.SwapIdentifier(ctx, guestIdentifier, userIdentifier, guest.Instance())
		if err != nil {
			return false, fmt.Errorf("swap cart identifier: %w", err)
		}
		if swapped {
			s.logger.Printf("migrated cart %s -> %s via identifier swap (%d items)", guestIdentifier, userIdentifier, len(guestItems))
			s.dispatcher.Dispatch(ctx, domain.Merged{
				Identifier:  userIdentifier,
				Instance:    guest.Instance(),
				Items:       guestItems,
				TotalMerged: len(guestItems),
			})
			return true, nil
		}
	}

	user := s.Cart(userIdentifier)
	hadConflicts, err := s.copyItems(ctx, guestItems, user)
	if err != nil {
		return false, err
	}
	if err := s.copyConditions(ctx, guest, user); err != nil {
		return false, err
	}
	if err := guest.Clear(ctx); err != nil {
		return false, fmt.Errorf("clear guest cart: %w", err)
	}

	merged, err := user.Items(ctx)
	if err != nil {
		return false, err
	}
	s.logger.Printf("merged cart %s -> %s (%d items, conflicts=%t)", guestIdentifier, userIdentifier, len(guestItems), hadConflicts)
	s.dispatcher.Dispatch(ctx, domain.Merged{
		Identifier:   userIdentifier,
		Instance:     user.Instance(),
		Items:        merged,
		TotalMerged:  len(guestItems),
		HadConflicts: hadConflicts,
	})
	return true, nil
}

// BackupUserCartToGuest copies the user cart into the guest cart without
// clearing the source. Logout-time backup; no-op when the user cart is
// empty.
func (s *Service) BackupUserCartToGuest(ctx context.Context, userIdentifier, guestIdentifier string) (bool, error) {
	user := s.Cart(userIdentifier)
	items, err := user.Items(ctx)
	if err != nil {
		return false, fmt.Errorf("read user cart: %w", err)
	}
	if len(items) == 0 {
		return false, nil
	}
	guest := s.Cart(guestIdentifier)
	if _, err := s.copyItems(ctx, items, guest); err != nil {
		return false, err
	}
	if err := s.copyConditions(ctx, user, guest); err != nil {
		return false, err
	}
	return true, nil
}

// ForgetIdentifier drops every cart instance owned by the identifier, the
// full logout cleanup.
func (s *Service) ForgetIdentifier(ctx context.Context, identifier string) error {
	return s.store.ForgetIdentifier(ctx, identifier)
}

// copyItems merges source items into the target cart, resolving per-item
// conflicts with the configured strategy. Reports whether any item existed
// in both carts.
func (s *Service) copyItems(ctx context.Context, items []domain.CartItem, target *cart.Cart) (bool, error) {
	hadConflicts := false
	for _, item := range items {
		existing, err := target.Get(ctx, item.ID)
		if err != nil {
			return hadConflicts, err
		}
		if existing == nil {
			if _, err := target.Add(ctx, item.Clone()); err != nil {
				return hadConflicts, fmt.Errorf("merge item %s: %w", item.ID, err)
			}
			continue
		}

		hadConflicts = true
		switch s.strategy {
		case config.MergeKeepUserCart:
			// Target wins, nothing to do.
		case config.MergeKeepHighestQuantity:
			if item.Quantity > existing.Quantity {
				if err := s.setQuantity(ctx, target, item.ID, item.Quantity); err != nil {
					return hadConflicts, err
				}
			}
		case config.MergeReplaceWithGuest:
			qty := item.Quantity
			price := item.Price
			name := item.Name
			model := item.AssociatedModel
			if _, err := target.Update(ctx, item.ID, cart.ItemUpdate{
				Name:            &name,
				Price:           &price,
				Quantity:        &cart.QuantityChange{Value: qty},
				Attributes:      item.Attributes,
				AssociatedModel: &model,
			}); err != nil {
				return hadConflicts, fmt.Errorf("replace item %s: %w", item.ID, err)
			}
		default: // add_quantities
			if _, err := target.Update(ctx, item.ID, cart.ItemUpdate{
				Quantity: &cart.QuantityChange{Relative: true, Value: item.Quantity},
			}); err != nil {
				return hadConflicts, fmt.Errorf("sum quantities for item %s: %w", item.ID, err)
			}
		}
	}
	return hadConflicts, nil
}

func (s *Service) setQuantity(ctx context.Context, target *cart.Cart, itemID string, qty int) error {
	if _, err := target.Update(ctx, itemID, cart.ItemUpdate{
		Quantity: &cart.QuantityChange{Value: qty},
	}); err != nil {
		return fmt.Errorf("set quantity for item %s: %w", itemID, err)
	}
	return nil
}

// copyConditions brings over source cart-level conditions the target does
// not have yet; existing target conditions win on name clashes.
func (s *Service) copyConditions(ctx context.Context, source, target *cart.Cart) error {
	sourceConds, err := source.Conditions(ctx)
	if err != nil {
		return err
	}
	if len(sourceConds) == 0 {
		return nil
	}
	targetConds, err := target.Conditions(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(targetConds))
	for _, c := range targetConds {
		present[c.Name] = true
	}
	for _, c := range sourceConds {
		if present[c.Name] {
			continue
		}
		if err := target.AddCondition(ctx, c); err != nil {
			return fmt.Errorf("merge condition %s: %w", c.Name, err)
		}
	}
	return nil
}
