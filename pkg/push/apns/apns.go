package apns

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bracketflow/conf"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"golang.org/x/net/http2"
)

type PushMessage struct {
	Category string `json:"category,omitempty"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	// ios notification sound
	Sound     string                 `json:"sound,omitempty"`
	ExtParams map[string]interface{} `json:"ext_params,omitempty"`
}

type PushResponse struct {
	ApnsID string
	Reason string
}

// 基于 token(.p8) 的推送
type Apns struct {
	cfg    conf.Apns
	client *apns2.Client
}

func NewTokenApns(cfg conf.Apns) (*Apns, error) {
	if cfg.KeyFile == "" || cfg.KeyID == "" || cfg.TeamID == "" {
		return nil, fmt.Errorf("apns is not configured")
	}
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create APNS auth key: %w", err)
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("failed to get rootCAs: %w", err)
	}

	host := apns2.HostDevelopment
	if cfg.IsProd {
		host = apns2.HostProduction
	}

	return &Apns{
		cfg: cfg,
		client: &apns2.Client{
			Token: &token.Token{
				AuthKey: authKey,
				KeyID:   cfg.KeyID,
				TeamID:  cfg.TeamID,
			},
			HTTPClient: &http.Client{
				Transport: &http2.Transport{
					DialTLS: apns2.DialTLS,
					TLSClientConfig: &tls.Config{
						RootCAs: rootCAs,
					},
				},
				Timeout: apns2.HTTPClientTimeout,
			},
			Host: host,
		},
	}, nil
}

func (a *Apns) DeviceTokens() []string {
	return a.cfg.DeviceTokens
}

func (a *Apns) Push(msg *PushMessage, deviceToken string) (res *PushResponse, err error) {
	if msg == nil {
		return nil, fmt.Errorf("APNS push failed :%s", "无效的message")
	}
	resp, err := a.client.Push(a.notification(msg, deviceToken))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("APNS push failed :%s", resp.Reason)
	}
	return &PushResponse{
		ApnsID: resp.ApnsID,
		Reason: resp.Reason,
	}, nil
}

func (a *Apns) notification(msg *PushMessage, deviceToken string) *apns2.Notification {
	pl := payload.NewPayload().AlertTitle(msg.Title).AlertBody(msg.Body).Sound(msg.Sound).Category(msg.Category)
	if group, ok := msg.ExtParams["group"].(string); ok {
		pl = pl.ThreadID(group)
	}
	for k, v := range msg.ExtParams {
		pl.Custom(strings.ToLower(k), fmt.Sprintf("%v", v))
	}
	return &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       a.cfg.Topic,
		Expiration:  time.Now().Add(24 * time.Hour),
		Priority:    apns2.PriorityHigh,
		Payload:     pl,
	}
}
