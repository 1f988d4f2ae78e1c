package httpapi

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osservatorio-istat/platform/internal/apperr"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/repository"
	"github.com/osservatorio-istat/platform/internal/rules"
)

func TestParsePaginationDefaults(t *testing.T) {
	page, pageSize, err := parsePagination(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, pageSize)
}

func TestParsePaginationRejectsOutOfRange(t *testing.T) {
	_, _, err := parsePagination(url.Values{"page": {"0"}})
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)

	_, _, err = parsePagination(url.Values{"page_size": {"1001"}})
	require.Error(t, err)

	_, _, err = parsePagination(url.Values{"page_size": {"0"}})
	require.Error(t, err)

	_, _, err = parsePagination(url.Values{"page": {"not-a-number"}})
	require.Error(t, err)
}

func TestParsePaginationAcceptsBoundaryValues(t *testing.T) {
	page, pageSize, err := parsePagination(url.Values{"page": {"1"}, "page_size": {"1000"}})
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, 1000, pageSize)
}

func TestPaginateSlicesAndReportsTotal(t *testing.T) {
	views := make([]*repository.DatasetView, 5)
	for i := range views {
		views[i] = &repository.DatasetView{Dataset: &metadatastore.Dataset{DatasetID: "D"}}
	}

	page, total := paginate(views, 1, 2)
	assert.Equal(t, 2, len(page))
	assert.Equal(t, 5, total)

	page, total = paginate(views, 3, 2)
	assert.Equal(t, 1, len(page))
	assert.Equal(t, 5, total)

	page, total = paginate(views, 10, 2)
	assert.Equal(t, 0, len(page))
	assert.Equal(t, 5, total)
}

func TestRuleErrorMapsNotFound(t *testing.T) {
	err := ruleError(&rules.NotFoundError{RuleID: "missing"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}
