package sessions_test

import (
	"testing"

	"github.com/tariffdesk/tariffdesk/internal/sessions"
)

func TestProductFieldsQuery(t *testing.T) {
	cost := 24.5

	tests := []struct {
		name   string
		fields sessions.ProductFields
		want   string
	}{
		{
			name:   "empty fields",
			fields: sessions.ProductFields{},
			want:   "",
		},
		{
			name:   "whitespace only",
			fields: sessions.ProductFields{Name: "  ", Description: "\t"},
			want:   "",
		},
		{
			name:   "name and description",
			fields: sessions.ProductFields{Name: "Water bottle", Description: "Insulated flask"},
			want:   "Water bottle. Insulated flask",
		},
		{
			name: "all fields",
			fields: sessions.ProductFields{
				Name:        "Pullover",
				Description: "Long sleeve sweater",
				Origin:      "Vietnam",
				Materials: []sessions.Material{
					{Name: "cotton", Percentage: 60},
					{Name: "polyester", Percentage: 40},
				},
				Cost:   &cost,
				Vendor: "Acme Textiles",
				SKU:    "PUL-204",
			},
			want: "Pullover. Long sleeve sweater. origin: Vietnam. " +
				"materials: cotton 60%, polyester 40%. cost: $24.50. " +
				"vendor: Acme Textiles. sku: PUL-204",
		},
		{
			name: "material without percentage",
			fields: sessions.ProductFields{
				Name:      "Scarf",
				Materials: []sessions.Material{{Name: "wool"}},
			},
			want: "Scarf. materials: wool",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fields.Query(); got != tc.want {
				t.Errorf("Query() = %q, want %q", got, tc.want)
			}
		})
	}
}
