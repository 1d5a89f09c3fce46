package model

// Service is a farrier service a partner offers on the map.
type Service string

const (
	ServiceHoofShoeing   Service = "hoof-shoeing"
	ServiceGlueOnShoeing Service = "glue-on-shoeing"
)

// Badge is the qualitative activity level shown on a partner's map pin.
// It is derived from order counts once per run and carries no numbers.
type Badge string

const (
	BadgeNewPartner         Badge = "new-partner"
	BadgeTopPartner         Badge = "top-partner"
	BadgeActivePartner      Badge = "active-partner"
	BadgeOccasionallyActive Badge = "occasionally-active"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Contact struct {
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	WhatsApp bool   `json:"whatsapp,omitempty"`
	Website  string `json:"website,omitempty"`
}

// Partner is the canonical map entry. It is rebuilt from source truth on
// every run; nothing is patched incrementally. Location is nil when the
// address could not be resolved, and the frontend must tolerate that.
type Partner struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	PostalCode   string       `json:"postal_code,omitempty"`
	City         string       `json:"city,omitempty"`
	Country      string       `json:"country,omitempty"`
	Education    string       `json:"education,omitempty"`
	Services     []Service    `json:"services,omitempty"`
	Contact      Contact      `json:"contact"`
	Location     *Coordinates `json:"location,omitempty"`
	Badge        Badge        `json:"badge"`
	BadgeTooltip string       `json:"badge_tooltip"`
	NoLocation   bool         `json:"no_location,omitempty"`
}

// HasAddress reports whether the partner carries enough address data to
// build a geocode cache key. Postal code and city are both required;
// a partial address is treated as no address.
func (p Partner) HasAddress() bool {
	return p.PostalCode != "" && p.City != ""
}
