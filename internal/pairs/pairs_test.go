package pairs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&TradingPair{}))
	return NewService(db)
}

func TestCreatePair(t *testing.T) {
	s := newTestService(t)

	first, err := s.CreatePair("btc", "usd")
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.PairID)
	assert.Equal(t, "BTC", first.BaseSymbol)
	assert.Equal(t, "USD", first.QuoteSymbol)
	assert.NotEmpty(t, first.ExternalID)

	second, err := s.CreatePair("ETH", "USD")
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.PairID)

	_, err = s.CreatePair("BTC", "USD")
	assert.ErrorIs(t, err, ErrPairExists)
	_, err = s.CreatePair("", "USD")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
	_, err = s.CreatePair("USD", "USD")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestGetAndListPairs(t *testing.T) {
	s := newTestService(t)

	created, err := s.CreatePair("BTC", "USD")
	require.NoError(t, err)

	got, err := s.GetPair(created.PairID)
	require.NoError(t, err)
	assert.Equal(t, created.ExternalID, got.ExternalID)

	_, err = s.GetPair(99)
	assert.ErrorIs(t, err, ErrPairNotFound)

	listed, err := s.ListPairs()
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
