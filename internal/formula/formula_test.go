package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Djimon/DnDBastionManager/internal/catalog"
	"github.com/Djimon/DnDBastionManager/internal/currency"
	"github.com/Djimon/DnDBastionManager/internal/expr"
	"github.com/Djimon/DnDBastionManager/internal/model"
)

func TestRunResolvesSimpleTipFormula(t *testing.T) {
	cat := &catalog.Catalog{
		Formulas: map[string]*catalog.FormulaDef{
			"payout": {
				ID: "payout",
				Inputs: []catalog.FormulaInput{
					{Name: "tip", Source: "number"},
				},
				Calculations: []catalog.FormulaCalculation{
					{Name: "total", Formula: "tip * 2"},
				},
				Effects: []map[string]any{
					{"gold": "${total}"},
				},
			},
		},
	}
	e := New(cat, expr.New(expr.DefaultLimits()), nil)
	res := e.Run("payout", &model.SessionState{Bastion: &model.Bastion{}}, map[string]float64{"tip": 3}, nil)

	require.Empty(t, res.Errors)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, 6, res.Effects[0].Currency["gold"])
}

func TestRunMissingRequiredInputIsError(t *testing.T) {
	cat := &catalog.Catalog{
		Formulas: map[string]*catalog.FormulaDef{
			"payout": {
				ID:     "payout",
				Inputs: []catalog.FormulaInput{{Name: "tip", Source: "number"}},
			},
		},
	}
	e := New(cat, expr.New(expr.DefaultLimits()), nil)
	res := e.Run("payout", &model.SessionState{Bastion: &model.Bastion{}}, nil, nil)
	assert.NotEmpty(t, res.Errors)
}

func TestRunConvertsCurrencySourceInputToBaseUnits(t *testing.T) {
	cur, warnings := currency.Build(catalog.CurrencyConfig{
		Types:      []string{"copper", "gold"},
		Conversion: []catalog.ConversionEdge{{From: "gold", To: "copper", Rate: 100}},
	})
	require.Empty(t, warnings)

	def := float64(2)
	cat := &catalog.Catalog{
		Formulas: map[string]*catalog.FormulaDef{
			"price": {
				ID: "price",
				Inputs: []catalog.FormulaInput{
					{Name: "fee", Source: "currency", Key: "copper", Default: &def},
				},
				Effects: []map[string]any{
					{"gold": "${fee}"},
				},
			},
		},
	}
	e := New(cat, expr.New(expr.DefaultLimits()), cur)
	res := e.Run("price", &model.SessionState{Bastion: &model.Bastion{}}, nil, nil)

	require.Empty(t, res.Errors)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, 200, res.Effects[0].Currency["gold"], "a currency-source constant is converted into base units by its factor")
}

func TestExpandTriggerAppendsResidualFields(t *testing.T) {
	cat := &catalog.Catalog{
		Formulas: map[string]*catalog.FormulaDef{
			"bonus": {
				ID: "bonus",
				Effects: []map[string]any{
					{"gold": 5.0},
				},
			},
		},
	}
	e := New(cat, expr.New(expr.DefaultLimits()), nil)
	triggerID := "bonus"
	logText := "bonus applied"
	eff := &model.Effect{Trigger: &triggerID, Log: &logText}

	expanded, errs := e.ExpandTrigger(eff, &model.SessionState{Bastion: &model.Bastion{}}, nil, nil)
	require.Empty(t, errs)
	require.Len(t, expanded, 2)
	assert.Equal(t, 5, expanded[0].Currency["gold"])
	require.NotNil(t, expanded[1].Log)
	assert.Equal(t, "bonus applied", *expanded[1].Log)
}
