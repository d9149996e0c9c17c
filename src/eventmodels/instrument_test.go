package eventmodels

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInstrumentTypeString(t *testing.T) {
	assert.Equal(t, "security", InstrumentTypeSecurity.String())
	assert.Equal(t, "reserve", InstrumentTypeReserve.String())
	assert.Equal(t, "portfolio", InstrumentTypePortfolio.String())
	assert.Equal(t, "strategy", InstrumentTypeStrategy.String())
}

func TestPositionTypeString(t *testing.T) {
	assert.Equal(t, "long", PositionTypeLong.String())
	assert.Equal(t, "short", PositionTypeShort.String())

	assert.Equal(t, "roll long leg", fmt.Sprintf("roll %s leg", PositionTypeLong))
}
