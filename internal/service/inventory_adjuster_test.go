package service

import (
	"context"
	"testing"

	"storefront-orders/internal/models"
	"storefront-orders/internal/store/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReportsEveryOffendingLine(t *testing.T) {
	st := memstore.New()
	ok := uuid.New()
	short := uuid.New()
	gone := uuid.New()
	st.PutProduct(&models.Product{ID: ok, Status: models.ProductStatusAvailable, Sizes: map[string]int{"8": 5}})
	st.PutProduct(&models.Product{ID: short, Status: models.ProductStatusAvailable, Sizes: map[string]int{"8": 1, "9": 0}})
	st.PutProduct(&models.Product{ID: gone, Status: models.ProductStatusDiscontinued, Sizes: map[string]int{"8": 9}})
	missing := uuid.New()

	items := []models.CartItem{
		line(ok, "8", 2, "100"),
		line(short, "8", 3, "100"),
		line(short, "9", 1, "100"),
		line(gone, "8", 1, "100"),
		line(missing, "8", 1, "100"),
	}

	issues, err := NewInventoryAdjuster().Validate(context.Background(), st.Repos().Products(), items)
	require.NoError(t, err)
	require.Len(t, issues, 4)

	assert.Equal(t, StockIssue{ProductID: short, Size: "8", Requested: 3, Available: 1, Problem: StockProblemInsufficient}, issues[0])
	assert.Equal(t, StockProblemSizeUnavailable, issues[1].Problem)
	assert.Equal(t, StockProblemProductUnavailable, issues[2].Problem)
	assert.Equal(t, missing, issues[3].ProductID)
	assert.Equal(t, StockProblemProductUnavailable, issues[3].Problem)
}

func TestValidateSumsRepeatedLines(t *testing.T) {
	st := memstore.New()
	id := uuid.New()
	st.PutProduct(&models.Product{ID: id, Status: models.ProductStatusAvailable, Sizes: map[string]int{"8": 3}})

	issues, err := NewInventoryAdjuster().Validate(context.Background(), st.Repos().Products(), []models.CartItem{
		line(id, "8", 2, "100"),
		line(id, " 8 ", 2, "100"),
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 4, issues[0].Requested)
	assert.Equal(t, 3, issues[0].Available)
}

func TestReserveMarksOutOfStockAndReleaseRestores(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	id := uuid.New()
	st.PutProduct(&models.Product{ID: id, Status: models.ProductStatusAvailable, Sizes: map[string]int{"8": 2, "9": 1}})
	a := NewInventoryAdjuster()
	products := st.Repos().Products()

	require.NoError(t, a.Reserve(ctx, products, id, "8", 2))
	assert.Equal(t, models.ProductStatusAvailable, st.Product(id).Status)

	require.NoError(t, a.Reserve(ctx, products, id, "9", 1))
	assert.Equal(t, models.ProductStatusOutOfStock, st.Product(id).Status)

	require.NoError(t, a.Release(ctx, products, id, "9", 1))
	p := st.Product(id)
	assert.Equal(t, models.ProductStatusAvailable, p.Status)
	assert.Equal(t, 1, p.Sizes["9"])
}

func TestReserveConflict(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	id := uuid.New()
	st.PutProduct(&models.Product{ID: id, Status: models.ProductStatusAvailable, Sizes: map[string]int{"8": 1}})

	err := NewInventoryAdjuster().Reserve(ctx, st.Repos().Products(), id, "8", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ReasonStockConflict, reasonOf(t, err))
	assert.Equal(t, 1, st.Product(id).Sizes["8"])
}

func TestReleaseLeavesDiscontinuedAlone(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	id := uuid.New()
	st.PutProduct(&models.Product{ID: id, Status: models.ProductStatusDiscontinued, Sizes: map[string]int{"8": 0}})

	require.NoError(t, NewInventoryAdjuster().Release(ctx, st.Repos().Products(), id, "8", 1))
	p := st.Product(id)
	assert.Equal(t, models.ProductStatusDiscontinued, p.Status)
	assert.Equal(t, 1, p.Sizes["8"])
}
