package main

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"university-assistant/internal/common/database"
)

func TestImportCSVSkipsIncompleteRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pg := &database.PostgresClient{DB: db}

	input := strings.Join([]string{
		"question,answer,source",
		`"What are tuition fees?","See the bursar page.",https://example.edu/fees`,
		`"Orphan question","",`,
		`"When is move-in day?","The weekend before classes.",`,
	}, "\n")

	insert := regexp.QuoteMeta("INSERT INTO ai_knowledgebaseentry")
	mock.ExpectExec(insert).
		WithArgs("What are tuition fees?", "See the bursar page.", "https://example.edu/fees").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).
		WithArgs("When is move-in day?", "The weekend before classes.", nil).
		WillReturnResult(sqlmock.NewResult(2, 1))

	imported, skipped, err := importCSV(context.Background(), pg, strings.NewReader(input), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 1, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportCSVRequiresColumns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	pg := &database.PostgresClient{DB: db}

	_, _, err = importCSV(context.Background(), pg, strings.NewReader("question,reply\nq,a\n"), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answer column")
}
