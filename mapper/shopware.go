package mapper

import (
	"strings"

	"partnermap/model"
	"partnermap/shopware"
)

// Custom field keys as configured in the shop admin. The website is
// spread over several historically grown aliases; first non-empty wins.
const (
	fieldListing     = "partner_listing"
	fieldPostalCode  = "partner_plz"
	fieldCity        = "partner_ort"
	fieldCountry     = "partner_land"
	fieldEducation   = "partner_ausbildung"
	fieldHoofShoes   = "partner_hufschuhe"
	fieldGlueOn      = "partner_klebebeschlag"
	fieldContactPref = "partner_kontakt"
	fieldPhone       = "partner_telefon"
)

var websiteFieldAliases = []string{
	"partner_website",
	"partner_webseite",
	"partner_homepage",
	"partner_url",
}

// Listed reports the inclusion gate on its own: only an explicit
// boolean true lists a customer. False, absent and malformed values all
// keep the gate shut.
func Listed(customer shopware.Customer) bool {
	return customer.CustomFields.Bool(fieldListing)
}

// Normalize maps one source customer to zero-or-one partner. The second
// return value is false when the record is excluded: listing gate not
// explicitly true, or no usable display name. Exclusion is silent by
// contract; it is not an error.
//
// Geocoding and badge classification happen later; the returned partner
// has no location and no badge yet.
func Normalize(customer shopware.Customer) (model.Partner, bool) {
	if !Listed(customer) {
		return model.Partner{}, false
	}

	name := displayName(customer)
	if name == "" {
		return model.Partner{}, false
	}

	partner := model.Partner{
		ID:         "shopware:" + customer.ID,
		Name:       name,
		PostalCode: pickField(customer.CustomFields.String(fieldPostalCode), billingZip(customer)),
		City:       pickField(customer.CustomFields.String(fieldCity), billingCity(customer)),
		Country:    strings.ToUpper(pickField(customer.CustomFields.String(fieldCountry), billingCountry(customer))),
		Education:  strings.TrimSpace(customer.CustomFields.String(fieldEducation)),
		Services:   services(customer.CustomFields),
		Contact:    contact(customer),
	}
	return partner, true
}

func displayName(customer shopware.Customer) string {
	if name := strings.TrimSpace(customer.CompanyName); name != "" {
		return name
	}
	full := strings.TrimSpace(strings.TrimSpace(customer.FirstName) + " " + strings.TrimSpace(customer.LastName))
	return full
}

func services(fields shopware.CustomFields) []model.Service {
	var out []model.Service
	if fields.Bool(fieldHoofShoes) {
		out = append(out, model.ServiceHoofShoeing)
	}
	if fields.Bool(fieldGlueOn) {
		out = append(out, model.ServiceGlueOnShoeing)
	}
	return out
}

func contact(customer shopware.Customer) model.Contact {
	phone := strings.TrimSpace(customer.CustomFields.String(fieldPhone))
	if phone == "" && customer.DefaultBillingAddress != nil {
		phone = strings.TrimSpace(customer.DefaultBillingAddress.PhoneNumber)
	}
	return model.Contact{
		Phone:    phone,
		Email:    strings.TrimSpace(customer.Email),
		WhatsApp: phone != "" && prefersWhatsApp(customer.CustomFields.String(fieldContactPref)),
		Website:  website(customer.CustomFields),
	}
}

func website(fields shopware.CustomFields) string {
	for _, alias := range websiteFieldAliases {
		if value := strings.TrimSpace(fields.String(alias)); value != "" {
			return value
		}
	}
	return ""
}

func prefersWhatsApp(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "whatsapp")
}

func pickField(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func billingZip(customer shopware.Customer) string {
	if customer.DefaultBillingAddress == nil {
		return ""
	}
	return customer.DefaultBillingAddress.Zipcode
}

func billingCity(customer shopware.Customer) string {
	if customer.DefaultBillingAddress == nil {
		return ""
	}
	return customer.DefaultBillingAddress.City
}

func billingCountry(customer shopware.Customer) string {
	if customer.DefaultBillingAddress == nil {
		return ""
	}
	return customer.DefaultBillingAddress.Country.ISO
}
