package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(10_50, "CREDIT") // 10.50 credits
	d := m.ToDecimal()
	assert.Equal(t, "10.5", d.String())
}

func TestFromDecimal(t *testing.T) {
	d := decimal.NewFromFloat(10.50)
	cents := FromDecimal(d)
	assert.Equal(t, int64(10_50), cents)
}

func TestMoney_String(t *testing.T) {
	m := NewMoney(123, "CREDIT")
	assert.Equal(t, "1.23 CREDIT", m.String())
}
