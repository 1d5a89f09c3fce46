package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partnermap/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		total  int
		recent int
		want   model.Badge
	}{
		{
			name:   "no orders at all",
			total:  0,
			recent: 0,
			want:   model.BadgeNewPartner,
		},
		{
			name:   "zero total wins even with recent count",
			total:  0,
			recent: 9,
			want:   model.BadgeNewPartner,
		},
		{
			name:   "five recent orders",
			total:  12,
			recent: 5,
			want:   model.BadgeTopPartner,
		},
		{
			name:   "many recent orders",
			total:  40,
			recent: 22,
			want:   model.BadgeTopPartner,
		},
		{
			name:   "one recent order",
			total:  12,
			recent: 1,
			want:   model.BadgeActivePartner,
		},
		{
			name:   "four recent orders",
			total:  12,
			recent: 4,
			want:   model.BadgeActivePartner,
		},
		{
			name:   "three recent orders",
			total:  12,
			recent: 3,
			want:   model.BadgeActivePartner,
		},
		{
			name:   "orders but none recent",
			total:  12,
			recent: 0,
			want:   model.BadgeOccasionallyActive,
		},
		{
			name:   "single lifetime order long ago",
			total:  1,
			recent: 0,
			want:   model.BadgeOccasionallyActive,
		},
		{
			name:   "negative inputs clamp to new",
			total:  -3,
			recent: -1,
			want:   model.BadgeNewPartner,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.total, tt.recent))
		})
	}
}

// Every non-negative pair must map to exactly one of the four badges.
func TestClassifyTotal(t *testing.T) {
	valid := map[model.Badge]bool{
		model.BadgeNewPartner:         true,
		model.BadgeTopPartner:         true,
		model.BadgeActivePartner:      true,
		model.BadgeOccasionallyActive: true,
	}
	for total := 0; total <= 50; total++ {
		for recent := 0; recent <= 50; recent++ {
			badge := Classify(total, recent)
			require.Truef(t, valid[badge], "classify(%d, %d) = %q", total, recent, badge)
		}
	}
}

func TestTooltipNeverNumeric(t *testing.T) {
	for _, badge := range []model.Badge{
		model.BadgeNewPartner,
		model.BadgeTopPartner,
		model.BadgeActivePartner,
		model.BadgeOccasionallyActive,
	} {
		text := Tooltip(badge)
		require.NotEmpty(t, text, "badge %q has no tooltip", badge)
		for _, r := range text {
			assert.Falsef(t, r >= '0' && r <= '9', "tooltip for %q leaks a digit: %q", badge, text)
		}
	}
}
