package handler

import (
	"time"

	"github.com/opine-markets/opined/internal/domain"
	"github.com/opine-markets/opined/internal/service"
)

// Wire shapes for the JSON API. Domain types stay tag-free; the handler
// layer owns the external field names.

type marketResponse struct {
	ID             string    `json:"id"`
	Question       string    `json:"question"`
	Outcomes       []string  `json:"outcomes"`
	EndTime        time.Time `json:"end_time"`
	Liquidity      int64     `json:"liquidity"`
	TotalShares    []int64   `json:"total_shares"`
	Resolved       bool      `json:"resolved"`
	WinningOutcome *int      `json:"winning_outcome,omitempty"`
	Creator        string    `json:"creator"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toMarketResponse(m domain.Market) marketResponse {
	return marketResponse{
		ID:             m.ID,
		Question:       m.Question,
		Outcomes:       m.Outcomes,
		EndTime:        m.EndTime,
		Liquidity:      m.Liquidity,
		TotalShares:    m.TotalShares,
		Resolved:       m.Resolved,
		WinningOutcome: m.WinningOutcome,
		Creator:        m.Creator,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toMarketResponses(markets []domain.Market) []marketResponse {
	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, toMarketResponse(m))
	}
	return out
}

type orderResponse struct {
	ID             string    `json:"id"`
	MarketID       string    `json:"market_id"`
	User           string    `json:"user"`
	Side           string    `json:"side"`
	OutcomeIndex   int       `json:"outcome_index"`
	InputAmount    int64     `json:"input_amount"`
	ExpectedAmount int64     `json:"expected_amount"`
	ActualAmount   int64     `json:"actual_amount"`
	Fee            int64     `json:"fee"`
	Status         string    `json:"status"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		MarketID:       o.MarketID,
		User:           o.User,
		Side:           string(o.Side),
		OutcomeIndex:   o.OutcomeIndex,
		InputAmount:    o.InputAmount,
		ExpectedAmount: o.ExpectedAmount,
		ActualAmount:   o.ActualAmount,
		Fee:            o.Fee,
		Status:         string(o.Status),
		ErrorDetail:    o.ErrorDetail,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

type positionResponse struct {
	MarketID         string    `json:"market_id"`
	User             string    `json:"user"`
	Shares           []int64   `json:"shares"`
	TotalCost        int64     `json:"total_cost"`
	TotalFees        int64     `json:"total_fees"`
	Claimed          bool      `json:"claimed"`
	Question         string    `json:"question,omitempty"`
	Outcomes         []string  `json:"outcomes,omitempty"`
	Resolved         bool      `json:"resolved"`
	EstimatedWinning int64     `json:"estimated_winning"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toPositionResponse(v service.PositionView) positionResponse {
	return positionResponse{
		MarketID:         v.Position.MarketID,
		User:             v.Position.User,
		Shares:           v.Position.Shares,
		TotalCost:        v.Position.TotalCost,
		TotalFees:        v.Position.TotalFees,
		Claimed:          v.Position.Claimed,
		Question:         v.Market.Question,
		Outcomes:         v.Market.Outcomes,
		Resolved:         v.Market.Resolved,
		EstimatedWinning: v.EstimatedWinning,
		UpdatedAt:        v.Position.UpdatedAt,
	}
}

func toPositionResponses(views []service.PositionView) []positionResponse {
	out := make([]positionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toPositionResponse(v))
	}
	return out
}
