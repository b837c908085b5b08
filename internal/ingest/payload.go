package ingest

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// FlexFloat is a float64 that tolerates the storefront's loose typing: JSON
// numbers, numeric strings (with comma or dot decimals), null and anything
// unparseable all decode without error. Invalid input coerces to 0.
type FlexFloat float64

// UnmarshalJSON implements the lenient decoding policy
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	*f = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
	} else {
		s = string(data)
	}

	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// FlexInt decodes like FlexFloat but truncates to an integer
type FlexInt int

// UnmarshalJSON implements the lenient decoding policy
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	var f FlexFloat
	_ = f.UnmarshalJSON(data)
	*i = FlexInt(f)
	return nil
}

// PaiementBlock carries the storefront's payment flag ("OUI"/"NON", or
// already-canonical "PAID"/"PENDING")
type PaiementBlock struct {
	Statut string `json:"statut"`
}

// PrixBlock carries order-level pricing
type PrixBlock struct {
	Total    FlexFloat `json:"total"`
	Base     FlexFloat `json:"base"`
	Marquage FlexFloat `json:"marquage"`
}

// FicheBlock is the nested spec sheet describing the product customization
type FicheBlock struct {
	Famille          string `json:"famille"`
	Couleur          string `json:"couleur"`
	TailleImpression string `json:"taille_impression"`
	PositionLogo     string `json:"position_logo"`
}

// PrtBlock is the optional production sub-order group
type PrtBlock struct {
	Ref      string   `json:"ref"`
	Taille   string   `json:"taille"`
	Quantite *FlexInt `json:"quantite"`
}

// Article is one explicit line item in a native multi-item payload
type Article struct {
	Fiche        *FicheBlock `json:"fiche"`
	Prt          *PrtBlock   `json:"prt"`
	Reference    string      `json:"reference"`
	Taille       string      `json:"taille"`
	Collection   string      `json:"collection"`
	VisuelRecto  string      `json:"visuel_recto"`
	VisuelVerso  string      `json:"visuel_verso"`
	PrixBase     FlexFloat   `json:"prix_base"`
	PrixMarquage FlexFloat   `json:"prix_marquage"`
}

// NativePayload is the storefront's own webhook shape. Root-level product
// fields are used to synthesize a single item when no articles are given.
type NativePayload struct {
	Commande   string         `json:"commande"`
	Nom        string         `json:"nom"`
	Prenom     string         `json:"prenom"`
	Telephone  string         `json:"telephone"`
	Adresse    string         `json:"adresse"`
	DateLimite string         `json:"date_limite"`
	Note       string         `json:"note"`
	Paiement   *PaiementBlock `json:"paiement"`
	Prix       *PrixBlock     `json:"prix"`
	Fiche      *FicheBlock    `json:"fiche"`
	Prt        *PrtBlock      `json:"prt"`
	Articles   []Article      `json:"articles"`

	Reference   string `json:"reference"`
	Taille      string `json:"taille"`
	Collection  string `json:"collection"`
	VisuelRecto string `json:"visuel_recto"`
	VisuelVerso string `json:"visuel_verso"`
}

// ExternalLineItem is one line item in the generic e-commerce shape
type ExternalLineItem struct {
	SKU                string    `json:"sku"`
	Size               string    `json:"size"`
	Collection         string    `json:"collection"`
	ProductType        string    `json:"product_type"`
	Color              string    `json:"color"`
	PrintSize          string    `json:"print_size"`
	LogoPosition       string    `json:"logo_position"`
	FrontImageURL      string    `json:"front_image_url"`
	BackImageURL       string    `json:"back_image_url"`
	BasePrice          FlexFloat `json:"base_price"`
	CustomizationPrice FlexFloat `json:"customization_price"`
}

// ExternalPayload is the generic e-commerce webhook shape. It never reaches
// the validator directly: MapToNative renames and coerces it onto the native
// shape first, so "which system sent this" stays separate from "is it valid".
type ExternalPayload struct {
	OrderNumber       string             `json:"order_number"`
	CustomerName      string             `json:"customer_name"`
	CustomerFirstName string             `json:"customer_first_name"`
	Phone             string             `json:"phone"`
	ShippingAddress   string             `json:"shipping_address"`
	DueDate           string             `json:"due_date"`
	FinancialStatus   string             `json:"financial_status"`
	TotalPrice        FlexFloat          `json:"total_price"`
	Note              string             `json:"note"`
	LineItems         []ExternalLineItem `json:"line_items"`
}

// MapToNative converts the external shape onto the native one. Pure
// field-renaming and coercion; no validation happens here.
func (e *ExternalPayload) MapToNative() *NativePayload {
	native := &NativePayload{
		Commande:   e.OrderNumber,
		Nom:        e.CustomerName,
		Prenom:     e.CustomerFirstName,
		Telephone:  e.Phone,
		Adresse:    e.ShippingAddress,
		DateLimite: e.DueDate,
		Note:       e.Note,
		Prix:       &PrixBlock{Total: e.TotalPrice},
	}

	statut := "NON"
	if strings.EqualFold(e.FinancialStatus, "paid") || strings.EqualFold(e.FinancialStatus, "oui") {
		statut = "OUI"
	}
	native.Paiement = &PaiementBlock{Statut: statut}

	for _, li := range e.LineItems {
		native.Articles = append(native.Articles, Article{
			Fiche: &FicheBlock{
				Famille:          li.ProductType,
				Couleur:          li.Color,
				TailleImpression: li.PrintSize,
				PositionLogo:     li.LogoPosition,
			},
			Reference:    li.SKU,
			Taille:       li.Size,
			Collection:   li.Collection,
			VisuelRecto:  li.FrontImageURL,
			VisuelVerso:  li.BackImageURL,
			PrixBase:     li.BasePrice,
			PrixMarquage: li.CustomizationPrice,
		})
	}

	return native
}

// shapeProbe looks at the discriminating keys of the two accepted shapes
type shapeProbe struct {
	Commande    *string `json:"commande"`
	OrderNumber *string `json:"order_number"`
}

// decodePayload decodes raw JSON into the native shape, mapping the external
// shape first when its discriminator is present
func decodePayload(raw []byte) (*NativePayload, error) {
	var probe shapeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	if probe.Commande == nil && probe.OrderNumber != nil {
		var ext ExternalPayload
		if err := json.Unmarshal(raw, &ext); err != nil {
			return nil, err
		}
		return ext.MapToNative(), nil
	}

	var native NativePayload
	if err := json.Unmarshal(raw, &native); err != nil {
		return nil, err
	}
	return &native, nil
}
