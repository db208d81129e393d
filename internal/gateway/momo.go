package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"momovault/internal/config"
)

// ============================================================================
// MoMo Disbursement API 客户端
// ============================================================================
//
// 接口约定（sandbox 实测）：
//   POST /token/                 Basic 认证换 access_token，带订阅 key
//   POST /v1_0/transfer          放款，X-Reference-Id 为幂等键，202 = 已受理
//   GET  /v1_0/transfer/{refId}  查询放款状态（对账）
//
// 凭证按租约缓存：token 带过期时间，过期前复用，过期或被网关打回 401 时重取。
// 凭证只存在客户端实例里，不落全局变量
// ============================================================================

const tokenExpirySlack = 60 * time.Second

type MomoClient struct {
	cfg        *config.MomoConfig
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewMomoClient(cfg *config.MomoConfig) *MomoClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MomoClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate 获取授权凭证，缓存未过期时直接复用
func (c *MomoClient) Authenticate(ctx context.Context) error {
	_, err := c.token(ctx)
	return err
}

func (c *MomoClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/token/", nil)
	if err != nil {
		return "", err
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.APIUser + ":" + c.cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[MomoClient] 获取凭证失败: status=%d, body=%s", resp.StatusCode, string(body))
		return "", ErrUnauthenticated
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("%w: 凭证响应解析失败", ErrUnauthenticated)
	}
	if tokenResp.AccessToken == "" {
		return "", ErrUnauthenticated
	}

	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn <= tokenExpirySlack {
		expiresIn = tokenExpirySlack * 2
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(expiresIn - tokenExpirySlack)
	return c.accessToken, nil
}

// invalidateToken 网关打回 401 时作废缓存凭证
func (c *MomoClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

type transferBody struct {
	Amount       string        `json:"amount"`
	Currency     string        `json:"currency"`
	ExternalID   string        `json:"externalId"`
	Payee        transferParty `json:"payee"`
	PayerMessage string        `json:"payerMessage"`
	PayeeNote    string        `json:"payeeNote"`
}

type transferParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// Disburse 提交放款
//
// 结果分三类，调用方据此走不同分支：
//   nil              — 202，已受理
//   *RejectedError   — 网关给了明确否定答复，本地可以安全置 FAILED
//   ErrIndeterminate — 超时 / 连接中断，答复缺失，必须对账后再定
func (c *MomoClient) Disburse(ctx context.Context, dr *DisburseRequest) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	body := transferBody{
		Amount:       dr.Amount.StringFixed(2),
		Currency:     dr.Currency,
		ExternalID:   dr.ReferenceID,
		Payee:        transferParty{PartyIDType: "MSISDN", PartyID: dr.PayeePhone},
		PayerMessage: dr.Message,
		PayeeNote:    dr.Message,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1_0/transfer", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Reference-Id", dr.ReferenceID)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 请求可能已经到达网关，不能当作明确失败
		log.Printf("[MomoClient] 放款请求无定论: referenceId=%s, err=%v", dr.ReferenceID, err)
		return ErrIndeterminate
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateToken()
		return ErrUnauthenticated
	case resp.StatusCode >= 500:
		// 网关内部错误，放款是否入队未知
		log.Printf("[MomoClient] 放款响应无定论: referenceId=%s, status=%d", dr.ReferenceID, resp.StatusCode)
		return ErrIndeterminate
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("[MomoClient] 放款被拒绝: referenceId=%s, status=%d, body=%s", dr.ReferenceID, resp.StatusCode, string(body))
		return &RejectedError{Reason: fmt.Sprintf("gateway status %d", resp.StatusCode)}
	}
}

type transferStatusResponse struct {
	Status string `json:"status"`
	Reason struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"reason"`
}

// GetTransferStatus 按引用号查询放款最终状态
func (c *MomoClient) GetTransferStatus(ctx context.Context, referenceID string) (*TransferStatus, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1_0/transfer/%s", c.cfg.BaseURL, referenceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("查询放款状态失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode == http.StatusNotFound {
		// 引用号在网关侧不存在：放款从未被受理
		return &TransferStatus{ReferenceID: referenceID, Status: TransferStatusFailed, Reason: "reference not found"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("查询放款状态失败: status=%d", resp.StatusCode)
	}

	var statusResp transferStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&statusResp); err != nil {
		return nil, fmt.Errorf("放款状态响应解析失败: %w", err)
	}

	status := &TransferStatus{
		ReferenceID: referenceID,
		Status:      statusResp.Status,
		Reason:      statusResp.Reason.Message,
	}

	switch statusResp.Status {
	case TransferStatusPending, TransferStatusSuccessful, TransferStatusFailed:
		return status, nil
	default:
		return nil, errors.New("未知的放款状态: " + statusResp.Status)
	}
}
