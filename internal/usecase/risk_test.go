package usecase

import (
	"errors"
	"math"
	"testing"

	"FinansLab/internal/domain/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRiskPlanLong(t *testing.T) {
	p := NewRiskPlanner(DefaultRiskConfig())

	plan, err := p.Plan(100, 2, models.Long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// stop distance 3 below entry, targets 1.5x and 4x that distance above
	if !approx(plan.StopLoss, 97) {
		t.Fatalf("stop: got %v want 97", plan.StopLoss)
	}
	if !approx(plan.TakeProfit1, 104.5) {
		t.Fatalf("tp1: got %v want 104.5", plan.TakeProfit1)
	}
	if !approx(plan.TakeProfit2, 112) {
		t.Fatalf("tp2: got %v want 112", plan.TakeProfit2)
	}
	if !approx(plan.PositionSize, 0.01/0.03) {
		t.Fatalf("size: got %v want %v", plan.PositionSize, 0.01/0.03)
	}
	if !approx(plan.RiskReward, 1.5) {
		t.Fatalf("rr: got %v want 1.5", plan.RiskReward)
	}
	if !approx(plan.InitialRisk(), 3) {
		t.Fatalf("initial risk: got %v want 3", plan.InitialRisk())
	}
}

func TestRiskPlanShortMirrors(t *testing.T) {
	p := NewRiskPlanner(DefaultRiskConfig())

	plan, err := p.Plan(100, 2, models.Short)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(plan.StopLoss, 103) {
		t.Fatalf("stop: got %v want 103", plan.StopLoss)
	}
	if !approx(plan.TakeProfit1, 95.5) {
		t.Fatalf("tp1: got %v want 95.5", plan.TakeProfit1)
	}
	if !approx(plan.TakeProfit2, 88) {
		t.Fatalf("tp2: got %v want 88", plan.TakeProfit2)
	}
}

func TestRiskPlanRejectsBadInputs(t *testing.T) {
	p := NewRiskPlanner(DefaultRiskConfig())

	cases := []struct {
		name  string
		entry float64
		atr   float64
		dir   models.Direction
	}{
		{"zero entry", 0, 2, models.Long},
		{"zero atr", 100, 0, models.Long},
		{"negative atr", 100, -1, models.Long},
		{"neutral direction", 100, 2, models.Neutral},
		{"stop below zero", 1, 10, models.Long},
	}
	for _, c := range cases {
		if _, err := p.Plan(c.entry, c.atr, c.dir); !errors.Is(err, models.ErrInvalidRiskPlan) {
			t.Fatalf("%s: got %v want ErrInvalidRiskPlan", c.name, err)
		}
	}
}

func TestRiskPlanDeterministic(t *testing.T) {
	p := NewRiskPlanner(DefaultRiskConfig())

	a, err := p.Plan(27350.5, 180.25, models.Long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Plan(27350.5, 180.25, models.Long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *a != *b {
		t.Fatalf("plans differ: %+v vs %+v", a, b)
	}
}

func TestRiskPlannerRepairsConfig(t *testing.T) {
	p := NewRiskPlanner(RiskConfig{})

	plan, err := p.Plan(100, 2, models.Long)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(plan.StopLoss, 97) {
		t.Fatalf("defaults not applied: stop %v", plan.StopLoss)
	}
}
