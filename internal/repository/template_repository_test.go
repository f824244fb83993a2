package repository_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/marketing-dashboard/internal/db"
	appErrors "github.com/unclebandit/marketing-dashboard/internal/errors"
	"github.com/unclebandit/marketing-dashboard/internal/repository"
)

var templateCols = []string{"code", "subject", "html_body", "description", "created_at", "updated_at"}

func TestTemplateListSearchAndSort(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := repository.NewTemplateRepository(conn)

	mock.ExpectQuery(`FROM email_templates WHERE \(code ILIKE \$1 OR subject ILIKE \$1 OR description ILIKE \$1\) ORDER BY updated_at DESC`).
		WithArgs("%promo%").
		WillReturnRows(sqlmock.NewRows(templateCols))

	got, err := repo.List(context.Background(), repository.TemplateListFilter{
		Search: " promo ",
		Sort:   db.Sort{Column: "html_body; DROP TABLE email_templates", Direction: "desc"},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateMissing(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := repository.NewTemplateRepository(conn)

	mock.ExpectQuery(`FROM email_templates WHERE code = \$1`).
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows(templateCols))
	mock.ExpectExec(`DELETE FROM email_templates WHERE code = \$1`).
		WithArgs("NOPE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = repo.GetByCode(context.Background(), "NOPE")
	assert.True(t, appErrors.Is(err, appErrors.KindNotFound))
	err = repo.Delete(context.Background(), "NOPE")
	assert.True(t, appErrors.Is(err, appErrors.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
