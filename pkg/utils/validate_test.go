package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thresholds struct {
	Name  string  `validate:"required"`
	Value float64 `validate:"gte=0,lte=1"`
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		v, err := Validate(thresholds{Name: "ldrt", Value: 0.2})
		require.NoError(t, err)
		assert.Equal(t, "ldrt", v.Name)
	})

	t.Run("reports each failed field", func(t *testing.T) {
		_, err := Validate(thresholds{Value: 2})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "field 'Name': rule 'required'")
		assert.Contains(t, err.Error(), "field 'Value': rule 'lte' expected '1'")
	})
}

func TestValidateValue(t *testing.T) {
	assert.NoError(t, ValidateValue("mtree", "oneof=mtree pivot linear"))
	assert.Error(t, ValidateValue("kd", "oneof=mtree pivot linear"))
}
