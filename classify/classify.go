package classify

import "partnermap/model"

// Tooltip texts are fixed per badge and deliberately free of counts or
// dates; order figures never leave the pipeline.
var tooltips = map[model.Badge]string{
	model.BadgeNewPartner:         "Neu dabei: dieser Partner hat noch keine Bestellungen abgeschlossen.",
	model.BadgeTopPartner:         "Sehr aktiver Partner mit vielen Bestellungen in den letzten Monaten.",
	model.BadgeActivePartner:      "Aktiver Partner mit Bestellungen in den letzten Monaten.",
	model.BadgeOccasionallyActive: "Gelegentlich aktiver Partner, zuletzt ohne aktuelle Bestellungen.",
}

// Classify maps order-history aggregates to an activity badge. First
// matching rule wins:
//
//	total == 0            -> new partner
//	recent >= 5           -> top partner
//	1 <= recent <= 4      -> active partner
//	otherwise             -> occasionally active
//
// Total over all non-negative inputs; negative inputs are clamped to 0.
func Classify(totalOrders, recentOrders int) model.Badge {
	if totalOrders < 0 {
		totalOrders = 0
	}
	if recentOrders < 0 {
		recentOrders = 0
	}
	switch {
	case totalOrders == 0:
		return model.BadgeNewPartner
	case recentOrders >= 5:
		return model.BadgeTopPartner
	case recentOrders >= 1:
		return model.BadgeActivePartner
	default:
		return model.BadgeOccasionallyActive
	}
}

// Tooltip returns the static explanatory text for a badge.
func Tooltip(badge model.Badge) string {
	return tooltips[badge]
}
