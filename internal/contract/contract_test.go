package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaros/vintage-crm-core/internal/corerr"
)

func TestNormalizeColumnName(t *testing.T) {
	assert.Equal(t, "client_code", NormalizeColumnName("Client Code"))
	assert.Equal(t, "client_code", NormalizeColumnName("client-code"))
	assert.Equal(t, "client_code", NormalizeColumnName("  CLIENT_CODE  "))
}

func TestValidate_MissingRequiredColumn(t *testing.T) {
	err := Validate(TableClients, []string{"name", "email"})
	require.Error(t, err)
	assert.Equal(t, corerr.ContractError, corerr.KindOf(err))
}

func TestValidate_ExtraColumnsTolerated(t *testing.T) {
	err := Validate(TableClients, []string{"client_code", "name", "unexpected_extra"})
	assert.NoError(t, err)
}

func TestValidate_UnknownTable(t *testing.T) {
	_, err := For(Table("unknown"))
	require.Error(t, err)
	assert.Equal(t, corerr.ContractError, corerr.KindOf(err))
}

func TestValidate_SalesRequiredColumns(t *testing.T) {
	assert.NoError(t, Validate(TableSales, []string{"document_id", "product_key", "client_code", "amount"}))
	assert.Error(t, Validate(TableSales, []string{"document_id", "product_key"}))
}
