package handler

import (
	"context"

	"healthcare-records-api/internal/assistant"
	"healthcare-records-api/internal/rpc"
)

func answer(h *Handler, a assistant.Answer, err error) (*rpc.AnswerResponse, error) {
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &rpc.AnswerResponse{Text: a.Text, Degraded: a.Degraded}, nil
}

func (h *Handler) AnalyzeReports(ctx context.Context, req *rpc.AnalyzeRequest) (*rpc.AnswerResponse, error) {
	a, err := h.assistant.AnalyzeReports(ctx, caller(ctx), req.PatientID)
	return answer(h, a, err)
}

func (h *Handler) ExplainReport(ctx context.Context, req *rpc.ExplainRequest) (*rpc.AnswerResponse, error) {
	a, err := h.assistant.ExplainReport(ctx, caller(ctx), req.ReportID)
	return answer(h, a, err)
}

func (h *Handler) Chat(ctx context.Context, req *rpc.ChatRequest) (*rpc.AnswerResponse, error) {
	a, err := h.assistant.Chat(ctx, caller(ctx), req.Question)
	return answer(h, a, err)
}
