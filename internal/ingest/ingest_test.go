package ingest_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/document"
	"edihub/internal/domain"
	"edihub/internal/ingest"
	"edihub/internal/repo"
)

type owners map[string]domain.ActorNumber

func (o owners) GridAreaOwner(_ context.Context, gridArea string, instant time.Time) (domain.GridAreaOwner, error) {
	n, ok := o[gridArea]
	if !ok {
		return domain.GridAreaOwner{}, repo.ErrNotFound
	}
	return domain.GridAreaOwner{GridArea: gridArea, Owner: n, ValidFrom: instant}, nil
}

var (
	start = time.Date(2024, 6, 3, 22, 0, 0, 0, time.UTC)
	reg   = owners{"805": "5790000000010"}
)

func f(v float64) *float64 { return &v }

func TestRecipients(t *testing.T) {
	ctx := context.Background()
	es, err := ingest.Recipients(ctx, reg, "805", "111", "222", start)
	require.NoError(t, err)
	assert.Equal(t, []domain.Actor{
		domain.NewActor("111", domain.RoleEnergySupplier),
		domain.NewActor("222", domain.RoleBalanceResponsibleParty),
	}, es)

	brp, err := ingest.Recipients(ctx, reg, "805", "", "222", start)
	require.NoError(t, err)
	assert.Equal(t, []domain.Actor{domain.NewActor("222", domain.RoleBalanceResponsibleParty)}, brp)

	total, err := ingest.Recipients(ctx, reg, "805", "", "", start)
	require.NoError(t, err)
	assert.Equal(t, []domain.Actor{domain.NewActor("5790000000010", domain.RoleGridOperator)}, total)

	_, err = ingest.Recipients(ctx, reg, "999", "", "", start)
	assert.True(t, errors.Is(err, ingest.ErrNoGridAreaOwner))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestEnergyResultV1Totals(t *testing.T) {
	e := ingest.EnergyResultV1{
		CalculationID:   "calc-1",
		CalculationType: "BalanceFixing",
		GridArea:        "805",
		TimeSeriesType:  "Production",
		Resolution:      "PT1H",
		Points: []ingest.EnergyPointV1{
			{Time: start, Quantity: f(1), Quality: "Measured"},
			{Time: start.Add(time.Hour), Quantity: f(2), Quality: "Estimated"},
		},
	}
	drafts, err := e.Drafts(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	d := drafts[0]
	require.NoError(t, d.Validate())
	assert.Equal(t, domain.DocumentNotifyAggregatedMeasureData, d.DocumentType)
	assert.Equal(t, domain.ReasonBalanceFixing, d.BusinessReason)
	assert.Equal(t, domain.RoleGridOperator, d.Receiver.Role)
	assert.Equal(t, "E18", d.Series.MeteringPointType)
	require.True(t, d.IsTimeSeries())
	assert.Equal(t, []domain.Quality{domain.QualityEstimated}, d.TimeSeries.Points[1].Qualities)
	assert.True(t, d.RelatedTo.IsNone())
}

func TestEnergyResultV2ChecksPeriod(t *testing.T) {
	e := ingest.EnergyResultV2{
		CalculationID:   "calc-2",
		CalculationType: "Aggregation",
		GridArea:        "805",
		TimeSeriesType:  "FlexConsumption",
		EnergySupplier:  "111",
		Resolution:      "PT15M",
		PeriodStart:     start,
		PeriodEnd:       start.Add(time.Hour),
		Points: []ingest.EnergyPointV2{
			{Time: start, Quantity: f(1), Qualities: []string{"Measured", "Calculated"}},
			{Time: start.Add(time.Hour), Quantity: f(1), Qualities: []string{"Measured"}},
		},
	}
	_, err := e.Drafts(context.Background(), reg)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	e.Points = e.Points[:1]
	drafts, err := e.Drafts(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, domain.ReasonPreliminaryAggregation, drafts[0].BusinessReason)
	assert.Equal(t, "D01", drafts[0].Series.SettlementMethod)
}

func TestDraftIDsAreStablePerReceiver(t *testing.T) {
	e := ingest.EnergyResultV1{
		CalculationID: "calc-3", CalculationType: "BalanceFixing", GridArea: "805", TimeSeriesType: "NonProfiledConsumption",
		EnergySupplier: "111", BalanceResponsible: "222", Resolution: "PT1H",
		Points: []ingest.EnergyPointV1{{Time: start, Quantity: f(1), Quality: "Measured"}},
	}
	a, err := e.Drafts(context.Background(), reg)
	require.NoError(t, err)
	b, err := e.Drafts(context.Background(), reg)
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.Equal(t, a[0].ID, b[0].ID)
	assert.NotEqual(t, a[0].ID, a[1].ID)
}

func TestWholesaleResult(t *testing.T) {
	w := ingest.WholesaleResult{
		CalculationID: "calc-4", CalculationType: "WholesaleFixing", GridArea: "805",
		EnergySupplier: "111", ChargeCode: "40000", ChargeOwner: "5790000000010", Resolution: "P1D",
		Points: []ingest.WholesalePoint{{Time: start, Quantity: f(10), Price: f(0.5), Amount: f(5), Qualities: []string{"Calculated"}}},
	}
	drafts, err := w.Drafts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, domain.RoleEnergySupplier, drafts[0].Receiver.Role)
	assert.Equal(t, domain.RoleGridOperator, drafts[1].Receiver.Role)
	assert.Equal(t, "DKK", drafts[1].Series.Currency)
	assert.Equal(t, domain.ProcessReceiveWholesaleResults, drafts[0].ProcessType)
}

func TestRejectedRequestGroupsByRequest(t *testing.T) {
	r := ingest.RejectedRequest{
		RequestMessageID:      "req-1",
		OriginalTransactionID: "tx-1",
		RequesterNumber:       "111",
		RequesterRole:         "EnergySupplier",
		BusinessReason:        "BalanceFixing",
	}
	_, err := r.Drafts(context.Background(), nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	r.Reasons = []document.RejectReason{{Code: "E0I", Text: "bad grid area"}}
	drafts, err := r.Drafts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	id, ok := drafts[0].RelatedTo.MessageID()
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	assert.False(t, drafts[0].IsTimeSeries())
	assert.Equal(t, domain.DocumentRejectRequestAggregatedMeasureData, drafts[0].DocumentType)
}

func TestDecode(t *testing.T) {
	tr, err := ingest.Decode("rejected_request", []byte(`{"request_message_id":"req-9","original_transaction_id":"t","requester_number":"1","requester_role":"BalanceResponsibleParty","wholesale":true,"business_reason":"WholesaleFixing","reasons":[{"code":"D14"}]}`))
	require.NoError(t, err)
	drafts, err := tr.Drafts(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentRejectRequestWholesaleSettlement, drafts[0].DocumentType)

	_, err = ingest.Decode("unknown", nil)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = ingest.Decode("energy_result_v1", []byte("{"))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
