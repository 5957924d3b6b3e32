package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func finalizedReport(t *testing.T) *Report {
	t.Helper()
	m, svc, a, sess := openScenario(t)
	ctx := context.Background()
	require.NoError(t, sess.RecordResponse(ctx, bySource(t, m, a.ID, "qa1").ID, boolPtr(true), nil, nil))
	require.NoError(t, sess.RecordResponse(ctx, bySource(t, m, a.ID, "qa2").ID, boolPtr(false), strPtr("basura en pasillo"), strPtr("barrer cada hora")))
	_, err := sess.Finalize(ctx, FinalizeRequest{ConclusionNotes: "Reforzar limpieza"})
	require.NoError(t, err)
	r, err := svc.Report(ctx, a.ID)
	require.NoError(t, err)
	return r
}

func TestExportReportCSV(t *testing.T) {
	r := finalizedReport(t)
	out, err := ExportReportCSV(r)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, detailHeader, rows[0])
	assert.Equal(t, []string{"Limpieza", "Piso", "Piso trapeado", "pass", "", ""}, rows[1])
	assert.Equal(t, []string{"Limpieza", "Piso", "Piso sin basura", "fail", "basura en pasillo", "barrer cada hora"}, rows[2])
	assert.Equal(t, "", rows[3][3])
}

func TestExportReportXLSX(t *testing.T) {
	r := finalizedReport(t)
	out, err := ExportReportXLSX(r)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheetSummary, sheetDetails}, f.GetSheetList())

	store, err := f.GetCellValue(sheetSummary, "B1")
	require.NoError(t, err)
	assert.Equal(t, "Sucursal Centro", store)
	total, err := f.GetCellValue(sheetSummary, "B6")
	require.NoError(t, err)
	assert.Equal(t, "50", total)

	rows, err := f.GetRows(sheetDetails)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Piso sin basura", rows[2][2])
	assert.Equal(t, "fail", rows[2][3])
}
