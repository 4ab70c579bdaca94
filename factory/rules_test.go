package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/recon-engine/factory"
	"github.com/warp/recon-engine/ledger"
)

func TestParseRuleSet_TypedRules(t *testing.T) {
	// GIVEN: A JSON rule set with reason codes, categories, and amount bounds
	// WHEN: Parsed
	// THEN: Every field lands typed and exact

	rules, err := factory.ParseRuleSet([]byte(`{
		"company": "acme",
		"rules": [
			{
				"id": "r-receipts",
				"reason_codes": ["MISSING_RECEIPT", "MISSING_VENDOR"],
				"min_amount": "100.00",
				"max_amount": "5000.00",
				"currency": "EUR",
				"escalate_after_days": 14,
				"priority": 1
			},
			{
				"id": "r-duplicates",
				"categories": ["duplicate_suspected"],
				"escalate_after_days": 3,
				"priority": 2
			}
		]
	}`))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	r := rules[0]
	assert.Equal(t, ledger.RuleID("r-receipts"), r.ID)
	assert.Equal(t, "acme", r.Company)
	assert.Equal(t, []ledger.ReasonCode{ledger.ReasonMissingReceipt, ledger.ReasonMissingVendor}, r.ReasonCodes)
	require.NotNil(t, r.MinAmount)
	assert.Equal(t, int64(10000), r.MinAmount.Units)
	require.NotNil(t, r.MaxAmount)
	assert.Equal(t, int64(500000), r.MaxAmount.Units)
	assert.Equal(t, 14, r.EscalateAfterDays)

	assert.Equal(t, []ledger.ReasonCategory{ledger.CategoryDuplicate}, rules[1].Categories)
}

func TestParseRuleSet_UnknownReasonCode_Rejected(t *testing.T) {
	_, err := factory.ParseRuleSet([]byte(`{
		"company": "acme",
		"rules": [
			{"id": "r-1", "reason_codes": ["NOT_A_CODE"], "escalate_after_days": 7, "priority": 1}
		]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reason code")
}

func TestParseRuleSet_InvalidDelayAndRange_Rejected(t *testing.T) {
	_, err := factory.ParseRuleSet([]byte(`{
		"company": "acme",
		"rules": [{"id": "r-1", "escalate_after_days": 0, "priority": 1}]
	}`))
	require.Error(t, err)

	_, err = factory.ParseRuleSet([]byte(`{
		"company": "acme",
		"rules": [
			{
				"id": "r-1",
				"min_amount": "500.00",
				"max_amount": "100.00",
				"currency": "EUR",
				"escalate_after_days": 7,
				"priority": 1
			}
		]
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below min_amount")
}

func TestParseRuleSet_SubMinorUnitAmount_Rejected(t *testing.T) {
	_, err := factory.ParseRuleSet([]byte(`{
		"company": "acme",
		"rules": [
			{"id": "r-1", "min_amount": "100.005", "currency": "EUR", "escalate_after_days": 7, "priority": 1}
		]
	}`))
	require.Error(t, err)
}

func TestDefaultRuleSetJSON_Parses(t *testing.T) {
	rules, err := factory.ParseRuleSet([]byte(factory.DefaultRuleSetJSON("acme")))
	require.NoError(t, err)
	assert.Len(t, rules, 3)
}
