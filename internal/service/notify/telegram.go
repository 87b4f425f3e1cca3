package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"FinansLab/internal/domain/models"
	domrepo "FinansLab/internal/domain/repository"
	"FinansLab/internal/service/ratelimit"
	pkghttp "FinansLab/pkg/http"
)

// Telegram delivers signal notifications through the Bot API. Sends are
// capped at 20 per minute with a token bucket; above it the message is
// rejected and the caller's retry pipeline takes over.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	http    *pkghttp.Client
	limiter *ratelimit.Limiter
}

const (
	rateKey      = "telegram_send"
	rateCapacity = 20
	ratePerSec   = 20.0 / 60.0
)

func NewTelegram(token, chatID string, limiter *ratelimit.Limiter) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		http:    pkghttp.NewClient(pkghttp.WithTimeout(10 * time.Second)),
		limiter: limiter,
	}
}

var _ domrepo.Notifier = (*Telegram)(nil)

func (t *Telegram) Notify(ctx context.Context, s *models.PersistedSignal) error {
	if !t.limiter.Allow(rateKey, rateCapacity, ratePerSec) {
		return fmt.Errorf("telegram rate limit exceeded")
	}

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	err := t.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token),
		Body: map[string]interface{}{
			"chat_id":    t.chatID,
			"text":       formatSignal(s),
			"parse_mode": "HTML",
		},
	}, &apiResp)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram send: %s", apiResp.Description)
	}
	return nil
}

func formatSignal(s *models.PersistedSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s</b> [%s]\n", s.Instrument, s.Direction, s.Quality)
	fmt.Fprintf(&b, "Score: %d | TF: %s\n", s.Score, s.Timeframe)
	fmt.Fprintf(&b, "Entry: %.6g\n", s.Plan.Entry)
	fmt.Fprintf(&b, "SL: %.6g | TP1: %.6g | TP2: %.6g\n",
		s.Plan.StopLoss, s.Plan.TakeProfit1, s.Plan.TakeProfit2)
	fmt.Fprintf(&b, "Size: %.2f%% | R:R %.1f\n", s.Plan.PositionSize*100, s.Plan.RiskReward)
	if len(s.Factors) > 0 {
		names := make([]string, 0, len(s.Factors))
		for _, f := range s.Factors {
			names = append(names, fmt.Sprintf("%s(+%d)", f.Name, f.Points))
		}
		fmt.Fprintf(&b, "Factors: %s", strings.Join(names, ", "))
	}
	return b.String()
}
