package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rafaguilar/DynBanner-RenderGrid/api"
)

func TestFromTabs(t *testing.T) {
	m, row := FromTabs(map[string]map[string]string{
		"parent":        {"id": "P1", "headline": "Hi", "bad key": "x"},
		"creative_data": {"headline": "Creative"},
		"OMS":           {"price": "9.99"},
		"ignored":       {"a": "b"},
	})

	assert.Equal(t, api.ColumnMapping{
		{Field: "parent.headline", Path: "devDynamicContent.parent[0].headline"},
		{Field: "parent.id", Path: "devDynamicContent.parent[0].id"},
		{Field: "creative_data.headline", Path: "devDynamicContent.creative_data[0].headline"},
		{Field: "OMS.price", Path: "devDynamicContent.OMS[0].price"},
	}, m)
	assert.Equal(t, map[string]string{
		"parent.headline":        "Hi",
		"parent.id":              "P1",
		"creative_data.headline": "Creative",
		"OMS.price":              "9.99",
	}, row)
}

func TestFromTabs_Empty(t *testing.T) {
	m, row := FromTabs(nil)
	assert.Empty(t, m)
	assert.Empty(t, row)
}
