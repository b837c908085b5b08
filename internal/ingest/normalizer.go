package ingest

import (
	"strings"
	"time"

	"github.com/atelierhorizon/orderboard/backend/sync-service/internal/models"
)

// deadlineFormats are the date encodings the storefront is known to send
var deadlineFormats = []string{time.RFC3339, "2006-01-02"}

// Normalize validates and converts a raw webhook body into a canonical order.
// A non-nil error list means the payload was rejected; no partial orders are
// ever returned.
func Normalize(raw []byte) (*models.CanonicalOrder, []models.FieldError) {
	payload, err := decodePayload(raw)
	if err != nil {
		return nil, []models.FieldError{{Field: "body", Message: "invalid JSON payload"}}
	}

	order := &models.CanonicalOrder{
		ExternalReference: strings.TrimSpace(payload.Commande),
		CustomerName:      strings.TrimSpace(payload.Nom),
		CustomerFirstName: strings.TrimSpace(payload.Prenom),
		CustomerPhone:     strings.TrimSpace(payload.Telephone),
		CustomerAddress:   strings.TrimSpace(payload.Adresse),
		Deadline:          parseDeadline(payload.DateLimite),
		PaymentState:      paymentState(payload.Paiement),
		Note:              payload.Note,
	}

	if payload.Prix != nil {
		order.TotalAmount = nonNegative(float64(payload.Prix.Total))
	}

	order.Items = resolveItems(payload)

	if errs := validate(order); len(errs) > 0 {
		return nil, errs
	}
	return order, nil
}

// resolveItems applies the three-tier item resolution: explicit articles,
// then root-level product fields, then a placeholder keyed on the reference.
// The result is never empty.
func resolveItems(p *NativePayload) []models.LineItem {
	if len(p.Articles) > 0 {
		items := make([]models.LineItem, 0, len(p.Articles))
		for _, a := range p.Articles {
			items = append(items, itemFromArticle(a))
		}
		return items
	}

	if hasRootItemFields(p) {
		item := itemFromArticle(Article{
			Fiche:       p.Fiche,
			Prt:         p.Prt,
			Reference:   p.Reference,
			Taille:      p.Taille,
			Collection:  p.Collection,
			VisuelRecto: p.VisuelRecto,
			VisuelVerso: p.VisuelVerso,
		})
		if p.Prix != nil {
			item.UnitPrice = nonNegative(float64(p.Prix.Base) + float64(p.Prix.Marquage))
		}
		return []models.LineItem{item}
	}

	return []models.LineItem{{Reference: p.Commande}}
}

// hasRootItemFields reports whether any product detail exists at the payload root
func hasRootItemFields(p *NativePayload) bool {
	return p.Fiche != nil || p.Prt != nil ||
		p.Reference != "" || p.Taille != "" || p.Collection != "" ||
		p.VisuelRecto != "" || p.VisuelVerso != ""
}

// itemFromArticle converts one article into a line item
func itemFromArticle(a Article) models.LineItem {
	item := models.LineItem{
		Reference:  a.Reference,
		Size:       a.Taille,
		Collection: a.Collection,
		FrontImage: a.VisuelRecto,
		BackImage:  a.VisuelVerso,
		UnitPrice:  nonNegative(float64(a.PrixBase) + float64(a.PrixMarquage)),
	}
	if a.Fiche != nil {
		item.Family = a.Fiche.Famille
		item.Color = a.Fiche.Couleur
		item.PrintSize = a.Fiche.TailleImpression
		item.LogoPosition = a.Fiche.PositionLogo
	}
	if a.Prt != nil {
		item.PrintRef = a.Prt.Ref
		item.PrintSize2 = a.Prt.Taille
		if a.Prt.Quantite != nil {
			q := int(*a.Prt.Quantite)
			item.PrintQuantity = &q
		}
	}
	return item
}

// paymentState maps the storefront's payment encodings onto the canonical enum
func paymentState(p *PaiementBlock) models.PaymentState {
	if p == nil {
		return models.PaymentStatePending
	}
	switch strings.ToUpper(strings.TrimSpace(p.Statut)) {
	case "OUI", "PAID":
		return models.PaymentStatePaid
	default:
		return models.PaymentStatePending
	}
}

// parseDeadline accepts the known date formats; anything else is treated as absent
func parseDeadline(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range deadlineFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// nonNegative clamps coerced amounts to the invariant range
func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// validate runs the required-field checks on the canonical shape only
func validate(o *models.CanonicalOrder) []models.FieldError {
	var errs []models.FieldError
	if o.ExternalReference == "" {
		errs = append(errs, models.FieldError{Field: "commande", Message: "order reference is required"})
	}
	if o.CustomerName == "" {
		errs = append(errs, models.FieldError{Field: "nom", Message: "customer name is required"})
	}
	if o.TotalAmount <= 0 {
		errs = append(errs, models.FieldError{Field: "prix.total", Message: "total must be a positive number"})
	}
	return errs
}
