package speech

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	dashScopeTTSPath  = "/api/v1/services/audio/tts"
	dashScopeTTSModel = "sambert-zhide-v1"
	dashScopeVoice    = "longxiaochun"
)

// DashScopeSynthesizer calls the Aliyun DashScope speech synthesis API.
type DashScopeSynthesizer struct {
	http   *resty.Client
	apiKey string
}

func NewDashScopeSynthesizer(baseURL, apiKey string, timeout time.Duration) *DashScopeSynthesizer {
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", "ai-roleplay/1.0")
	return &DashScopeSynthesizer{http: client, apiKey: apiKey}
}

func (s *DashScopeSynthesizer) Name() string { return "dashscope" }

type dashScopeInput struct {
	Text string `json:"text"`
}

type dashScopeParams struct {
	Voice  string `json:"voice"`
	Format string `json:"format"`
	Rate   int    `json:"sample_rate"`
	Volume int    `json:"volume"`
}

type dashScopeReq struct {
	Model      string          `json:"model"`
	Input      dashScopeInput  `json:"input"`
	Parameters dashScopeParams `json:"parameters"`
}

func (s *DashScopeSynthesizer) Synthesize(ctx context.Context, text string, opts Options) (*Audio, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("dashscope: api key is required")
	}
	voice := opts.Voice
	if voice == "" {
		voice = dashScopeVoice
	}
	format, _ := NormalizeFormat(opts.Format)

	resp, err := s.http.R().
		SetContext(ctx).
		SetAuthToken(s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(dashScopeReq{
			Model: dashScopeTTSModel,
			Input: dashScopeInput{Text: text},
			Parameters: dashScopeParams{
				Voice:  voice,
				Format: format,
				Rate:   16000,
				Volume: 50,
			},
		}).
		Post(dashScopeTTSPath)
	if err != nil {
		return nil, fmt.Errorf("dashscope: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("dashscope: status %d", resp.StatusCode())
	}

	ct := resp.Header().Get("Content-Type")
	if !strings.Contains(ct, "audio") && !strings.Contains(ct, "octet-stream") {
		return nil, fmt.Errorf("dashscope: unexpected content type %q", ct)
	}
	data := resp.Body()
	if len(data) == 0 {
		return nil, fmt.Errorf("dashscope: %w", ErrEmptyAudio)
	}
	return &Audio{Data: data, Format: format}, nil
}
