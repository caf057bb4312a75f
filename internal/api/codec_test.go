package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"loanpipe/internal/book"
)

func TestStoreRequest_WireFieldNames(t *testing.T) {
	rec := book.NewRecord("B1", "Rayuela", 1)
	require.NoError(t, rec.Borrow("alice", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	s, err := ToStruct(UpdateRecord(rec))
	require.NoError(t, err)

	assert.Equal(t, TypeUpdateRecord, s.Fields["type"].GetStringValue())
	wireRec := s.Fields["record"].GetStructValue()
	require.NotNil(t, wireRec)
	assert.Equal(t, "B1", wireRec.Fields["isbn"].GetStringValue())
	assert.Equal(t, "Rayuela", wireRec.Fields["titulo"].GetStringValue())
	assert.Equal(t, float64(0), wireRec.Fields["copiasDisponibles"].GetNumberValue())
	assert.Equal(t, "alice", wireRec.Fields["prestadoA"].GetListValue().GetValues()[0].GetStringValue())
	assert.Equal(t, "2025-01-08", wireRec.Fields["fechaLim"].GetStructValue().Fields["alice"].GetStringValue())
	assert.Contains(t, wireRec.Fields["renovaciones"].GetStructValue().Fields, "alice")
}

func TestFromStruct_DecodesRecordResult(t *testing.T) {
	raw := []byte(`{"status":"OK","message":"found","record":{"isbn":"B2","titulo":"Ficciones","copiasDisponibles":3,"prestadoA":["bob"],"renovaciones":{"bob":2},"fechaLim":{"bob":"2025-02-01"}}}`)
	s, err := BytesToStruct(raw)
	require.NoError(t, err)

	var res Result
	require.NoError(t, FromStruct(s, &res))
	assert.True(t, res.IsOK())
	require.NotNil(t, res.Record)
	assert.Equal(t, 3, res.Record.CopiesAvailable)
	assert.Equal(t, []string{"bob"}, res.Record.BorrowedBy)
	assert.Equal(t, 2, res.Record.Renewals["bob"])
	assert.Equal(t, "2025-02-01", res.Record.DueDates["bob"])
}

func TestFromStruct_Nil(t *testing.T) {
	var res Result
	assert.Error(t, FromStruct(nil, &res))
}

func TestBytesToStruct_RejectsNonObject(t *testing.T) {
	_, err := BytesToStruct([]byte(`["not","an","object"]`))
	assert.Error(t, err)
}

func TestRequest_DispatchFieldNames(t *testing.T) {
	s, err := ToStruct(book.Request{Kind: book.Renew, ISBN: "B1", User: "carol"})
	require.NoError(t, err)
	assert.Equal(t, "RENEW", s.Fields["tipo"].GetStringValue())
	assert.Equal(t, "carol", s.Fields["usuario"].GetStringValue())
	assert.NotContains(t, s.Fields, "id")
}
