package offers

import (
	"context"
	"time"

	"nestfind-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Seller and buyer response actions.
const (
	ActionAccept  = "ACCEPT"
	ActionReject  = "REJECT"
	ActionCounter = "COUNTER"
)

type Service struct {
	DB *gorm.DB
	// TTL applied to new offers when the client does not send expires_at.
	OfferTTL time.Duration
}

// Create opens a new offer from a buyer. At most one non-terminal offer per
// (buyer, property) may exist at a time.
func (s *Service) Create(ctx context.Context, buyerID, propertyID uuid.UUID, amount float64, expiresAt *time.Time) (*domain.Offer, error) {
	if amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var out *domain.Offer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prop domain.Property
		if err := tx.Where("property_id = ?", propertyID).First(&prop).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "property"}
			}
			return err
		}
		if prop.Status != domain.PropertyListed {
			return &domain.InvalidStateError{Action: "create offer", From: prop.Status}
		}
		if prop.SellerID == buyerID {
			return &domain.ValidationError{Field: "buyer_id", Reason: "cannot offer on own property"}
		}

		var open int64
		if err := tx.Model(&domain.Offer{}).
			Where("buyer_id = ? AND property_id = ? AND status IN ?",
				buyerID, propertyID, []string{domain.OfferPending, domain.OfferCountered}).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return &domain.InvalidStateError{Action: "create offer", From: "open offer already exists for this property"}
		}

		exp := time.Now().Add(s.OfferTTL)
		if expiresAt != nil {
			if !expiresAt.After(time.Now()) {
				return &domain.ValidationError{Field: "expires_at", Reason: "must be in the future"}
			}
			exp = *expiresAt
		}

		o := domain.Offer{
			PropertyID: propertyID,
			BuyerID:    buyerID,
			Amount:     amount,
			Status:     domain.OfferPending,
			ExpiresAt:  exp,
		}
		if err := tx.Create(&o).Error; err != nil {
			return err
		}
		out = &o
		return nil
	})
	return out, err
}

// SellerRespond applies the seller's decision to a PENDING offer: accept
// creates the transaction, reject terminates, counter hands the decision back
// to the buyer with a counter price.
func (s *Service) SellerRespond(ctx context.Context, offerID, sellerID uuid.UUID, action string, counterPrice float64) (*domain.Offer, *domain.Transaction, error) {
	var (
		outOffer *domain.Offer
		outTx    *domain.Transaction
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, prop, err := s.loadForResponse(tx, offerID)
		if err != nil {
			return err
		}
		if prop.SellerID != sellerID {
			return &domain.ValidationError{Field: "seller_id", Reason: "not the property seller"}
		}
		if o.Status != domain.OfferPending {
			return &domain.InvalidStateError{Action: "respond to offer", From: o.Status}
		}

		switch action {
		case ActionAccept:
			t, err := s.accept(tx, o, prop, o.Amount)
			if err != nil {
				return err
			}
			outTx = t
		case ActionReject:
			o.Status = domain.OfferRejected
			if err := tx.Save(o).Error; err != nil {
				return err
			}
		case ActionCounter:
			if counterPrice <= 0 {
				return &domain.ValidationError{Field: "counter_price", Reason: "must be positive"}
			}
			o.Status = domain.OfferCountered
			o.CounterPrice = &counterPrice
			if err := tx.Save(o).Error; err != nil {
				return err
			}
		default:
			return &domain.ValidationError{Field: "action", Reason: "must be ACCEPT, REJECT or COUNTER"}
		}
		outOffer = o
		return nil
	})
	return outOffer, outTx, err
}

// BuyerRespondCounter applies the buyer's decision to a COUNTERED offer:
// accept takes the seller's counter price and creates the transaction; a new
// counter moves the offer back to PENDING at the buyer's new price, so the
// back-and-forth may continue until a terminal state is reached.
func (s *Service) BuyerRespondCounter(ctx context.Context, offerID, buyerID uuid.UUID, action string, newPrice float64) (*domain.Offer, *domain.Transaction, error) {
	var (
		outOffer *domain.Offer
		outTx    *domain.Transaction
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, prop, err := s.loadForResponse(tx, offerID)
		if err != nil {
			return err
		}
		if o.BuyerID != buyerID {
			return &domain.ValidationError{Field: "buyer_id", Reason: "not the offer owner"}
		}
		if o.Status != domain.OfferCountered {
			return &domain.InvalidStateError{Action: "respond to counter", From: o.Status}
		}

		switch action {
		case ActionAccept:
			t, err := s.accept(tx, o, prop, *o.CounterPrice)
			if err != nil {
				return err
			}
			outTx = t
		case ActionCounter:
			if newPrice <= 0 {
				return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
			}
			o.Status = domain.OfferPending
			o.Amount = newPrice
			o.CounterPrice = nil
			if err := tx.Save(o).Error; err != nil {
				return err
			}
		default:
			return &domain.ValidationError{Field: "action", Reason: "must be ACCEPT or COUNTER"}
		}
		outOffer = o
		return nil
	})
	return outOffer, outTx, err
}

// Withdraw terminates a buyer's own open offer.
func (s *Service) Withdraw(ctx context.Context, offerID, buyerID uuid.UUID) (*domain.Offer, error) {
	var out *domain.Offer
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o domain.Offer
		if err := tx.Where("offer_id = ?", offerID).First(&o).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return &domain.NotFoundError{Resource: "offer"}
			}
			return err
		}
		if o.BuyerID != buyerID {
			return &domain.ValidationError{Field: "buyer_id", Reason: "not the offer owner"}
		}
		if expired := s.lazyExpire(tx, &o); expired {
			return &domain.InvalidStateError{Action: "withdraw offer", From: domain.OfferExpired}
		}
		if !o.Open() {
			return &domain.InvalidStateError{Action: "withdraw offer", From: o.Status}
		}
		o.Status = domain.OfferWithdrawn
		if err := tx.Save(&o).Error; err != nil {
			return err
		}
		out = &o
		return nil
	})
	return out, err
}

// ListByBuyer returns a buyer's offers, newest first, applying lazy expiry.
func (s *Service) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]domain.Offer, error) {
	var list []domain.Offer
	err := s.DB.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("\"createdAt\" desc").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.lazyExpire(s.DB.WithContext(ctx), &list[i])
	}
	return list, nil
}

// ListBySeller returns offers on a seller's properties, newest first,
// applying lazy expiry.
func (s *Service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]domain.Offer, error) {
	var list []domain.Offer
	err := s.DB.WithContext(ctx).
		Joins("JOIN \"Properties\" p ON p.property_id = \"Offers\".property_id").
		Where("p.seller_id = ?", sellerID).
		Order("\"Offers\".\"createdAt\" desc").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i := range list {
		s.lazyExpire(s.DB.WithContext(ctx), &list[i])
	}
	return list, nil
}

// ExpireStale bulk-expires PENDING offers past their deadline. Meant for a
// periodic job; the same correction is also applied lazily on reads.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&domain.Offer{}).
		Where("status = ? AND expires_at < ?", domain.OfferPending, time.Now()).
		Update("status", domain.OfferExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Info().Int64("count", res.RowsAffected).Msg("Expired stale offers")
	}
	return res.RowsAffected, nil
}

// lazyExpire transitions a stale PENDING offer to EXPIRED in place. This is an
// internally-applied correction, not a caller-visible error.
func (s *Service) lazyExpire(tx *gorm.DB, o *domain.Offer) bool {
	if o.Status == domain.OfferPending && o.ExpiresAt.Before(time.Now()) {
		o.Status = domain.OfferExpired
		if err := tx.Model(&domain.Offer{}).
			Where("offer_id = ?", o.OfferID).
			Update("status", domain.OfferExpired).Error; err != nil {
			log.Error().Err(err).Str("offer_id", o.OfferID.String()).Msg("Failed to persist offer expiry")
		}
		return true
	}
	return false
}

func (s *Service) loadForResponse(tx *gorm.DB, offerID uuid.UUID) (*domain.Offer, *domain.Property, error) {
	var o domain.Offer
	if err := tx.Where("offer_id = ?", offerID).First(&o).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, &domain.NotFoundError{Resource: "offer"}
		}
		return nil, nil, err
	}
	if s.lazyExpire(tx, &o) {
		return nil, nil, &domain.InvalidStateError{Action: "respond to offer", From: domain.OfferExpired}
	}
	var prop domain.Property
	if err := tx.Where("property_id = ?", o.PropertyID).First(&prop).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, &domain.NotFoundError{Resource: "property"}
		}
		return nil, nil, err
	}
	return &o, &prop, nil
}

// accept terminates the offer as ACCEPTED and creates the transaction in its
// initial state with the agreed price copied over. The transaction takes
// exclusive ownership of the property's under-transaction marker; at most one
// non-terminal transaction may exist per property.
func (s *Service) accept(tx *gorm.DB, o *domain.Offer, prop *domain.Property, agreedPrice float64) (*domain.Transaction, error) {
	var openTx int64
	if err := tx.Model(&domain.Transaction{}).
		Where("property_id = ? AND status NOT IN ?",
			prop.PropertyID, []string{domain.TxCompleted, domain.TxCancelled}).
		Count(&openTx).Error; err != nil {
		return nil, err
	}
	if openTx > 0 {
		return nil, &domain.InvalidStateError{Action: "accept offer", From: "property already under transaction"}
	}

	o.Status = domain.OfferAccepted
	if err := tx.Save(o).Error; err != nil {
		return nil, err
	}

	t := domain.Transaction{
		PropertyID: prop.PropertyID,
		BuyerID:    o.BuyerID,
		SellerID:   prop.SellerID,
		TotalPrice: agreedPrice,
		Status:     domain.TxInitiated,
	}
	if err := tx.Create(&t).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&domain.Property{}).
		Where("property_id = ?", prop.PropertyID).
		Update("status", domain.PropertyUnderTransaction).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
