package providers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rykyfilipe/efactura-engine/config"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/utils"
)

// ANAFProvider talks to the e-Factura document exchange and the ANAF OAuth2
// identity provider. Document calls carry a bearer token; token calls use
// HTTP Basic client auth and, for the authorization-code and refresh grants,
// mutual TLS with the taxpayer certificate.
type ANAFProvider struct {
	cfg        config.ANAFConfig
	httpClient *http.Client
	logger     *utils.Logger
}

func CreateANAFProvider(cfg config.ANAFConfig) *ANAFProvider {
	return &ANAFProvider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: utils.CreateLogger("anaf-provider"),
	}
}

// uploadResponse is the header element ANAF returns on upload. An
// ExecutionStatus of 0 means the document was received and queued; the
// index_incarcare attribute is the request identifier for later polling.
type uploadResponse struct {
	XMLName         xml.Name `xml:"header"`
	ExecutionStatus int      `xml:"ExecutionStatus,attr"`
	IndexIncarcare  string   `xml:"index_incarcare,attr"`
	DateResponse    string   `xml:"dateResponse,attr"`
	Errors          []struct {
		ErrorMessage string `xml:"errorMessage,attr"`
	} `xml:"Errors"`
}

type statusResponse struct {
	XMLName      xml.Name `xml:"header"`
	Stare        string   `xml:"stare,attr"`
	IDDescarcare string   `xml:"id_descarcare,attr"`
	Errors       []struct {
		ErrorMessage string `xml:"errorMessage,attr"`
	} `xml:"Errors"`
}

func (p *ANAFProvider) UploadInvoice(ctx context.Context, accessToken string, invoiceXML []byte, opts UploadOptions) (*UploadResult, error) {
	standard := opts.Standard
	if standard == "" {
		standard = "UBL"
	}

	endpoint := fmt.Sprintf("%s/upload?standard=%s&cif=%s",
		p.cfg.APIBaseURL, url.QueryEscape(standard), url.QueryEscape(opts.TaxID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(invoiceXML))
	if err != nil {
		return nil, Classify(OpUpload, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/xml")

	body, status, retryAfter, err := p.do(req)
	if err != nil {
		return nil, Classify(OpUpload, err)
	}
	if status != http.StatusOK {
		return nil, ClassifyHTTP(OpUpload, status, string(body), retryAfter)
	}

	var parsed uploadResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &ClassifiedError{
			Category:    CategoryUpstreamAPI,
			Operation:   OpUpload,
			Message:     fmt.Sprintf("unparseable upload response: %v", err),
			UserMessage: "Răspunsul ANAF nu a putut fi interpretat.",
			Retryable:   true,
			Raw:         string(body),
		}
	}

	if parsed.ExecutionStatus != 0 || parsed.IndexIncarcare == "" {
		return nil, &ClassifiedError{
			Category:    CategorySubmission,
			Operation:   OpUpload,
			Message:     joinUploadErrors(parsed),
			UserMessage: "ANAF a respins documentul la încărcare.",
			Retryable:   false,
			Raw:         string(body),
		}
	}

	return &UploadResult{
		RequestID: parsed.IndexIncarcare,
		Message:   "document queued for validation",
		Timestamp: time.Now(),
	}, nil
}

func (p *ANAFProvider) GetStatus(ctx context.Context, accessToken, requestID string) (*StatusResult, error) {
	endpoint := fmt.Sprintf("%s/stareMesaj?id_incarcare=%s", p.cfg.APIBaseURL, url.QueryEscape(requestID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Classify(OpStatusCheck, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, retryAfter, err := p.do(req)
	if err != nil {
		return nil, Classify(OpStatusCheck, err)
	}
	if status != http.StatusOK {
		return nil, ClassifyHTTP(OpStatusCheck, status, string(body), retryAfter)
	}

	var parsed statusResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, &ClassifiedError{
			Category:    CategoryStatusCheck,
			Operation:   OpStatusCheck,
			Message:     fmt.Sprintf("unparseable status response: %v", err),
			UserMessage: "Răspunsul ANAF nu a putut fi interpretat.",
			Retryable:   true,
			Raw:         string(body),
		}
	}

	result := &StatusResult{
		RequestID:  requestID,
		DownloadID: parsed.IDDescarcare,
	}

	switch strings.ToLower(parsed.Stare) {
	case "ok":
		result.Status = models.SubmissionStatusAccepted
		result.Message = "document accepted by the authority"
	case "nok":
		result.Status = models.SubmissionStatusRejected
		result.Message = joinStatusErrors(parsed)
	case "in prelucrare":
		result.Status = models.SubmissionStatusProcessing
		result.Message = "document still being processed"
	case "":
		return nil, &ClassifiedError{
			Category:    CategoryStatusCheck,
			Operation:   OpStatusCheck,
			Message:     "status response carried no state",
			UserMessage: "ANAF nu a returnat o stare pentru acest document.",
			Retryable:   false,
			Raw:         string(body),
		}
	default:
		result.Status = models.SubmissionStatusProcessing
		result.Message = fmt.Sprintf("unrecognized upstream state %q", parsed.Stare)
	}

	return result, nil
}

func (p *ANAFProvider) DownloadResponse(ctx context.Context, accessToken, requestID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/descarcare?id=%s", p.cfg.APIBaseURL, url.QueryEscape(requestID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, Classify(OpDownload, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, retryAfter, err := p.do(req)
	if err != nil {
		return nil, Classify(OpDownload, err)
	}
	if status != http.StatusOK {
		return nil, ClassifyHTTP(OpDownload, status, string(body), retryAfter)
	}

	return body, nil
}

func (p *ANAFProvider) ExchangeToken(ctx context.Context, tokenReq *TokenRequest) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", string(tokenReq.Grant))

	switch tokenReq.Grant {
	case GrantAuthorizationCode:
		form.Set("code", tokenReq.Code)
		form.Set("redirect_uri", tokenReq.RedirectURI)
		form.Set("token_content_type", "jwt")
	case GrantRefreshToken:
		form.Set("refresh_token", tokenReq.RefreshToken)
	case GrantClientCredentials:
		// client id/secret travel in the Basic header only
	default:
		return nil, &ClassifiedError{
			Category:    CategoryToken,
			Operation:   OpToken,
			Message:     fmt.Sprintf("unsupported grant type %q", tokenReq.Grant),
			UserMessage: "Tip de autorizare necunoscut.",
			Retryable:   false,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, Classify(OpToken, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	client := p.httpClient
	if tokenReq.ClientTLS != nil {
		client = p.mtlsClient(tokenReq.ClientTLS)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(OpToken, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Classify(OpToken, err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if jsonErr := json.Unmarshal(body, &oauthErr); jsonErr == nil && oauthErr.Error != "" {
			return nil, ClassifyOAuthError(OpToken, oauthErr.Error, oauthErr.Description)
		}
		return nil, ClassifyHTTP(OpToken, resp.StatusCode, string(body), parseRetryAfter(resp.Header))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &ClassifiedError{
			Category:    CategoryToken,
			Operation:   OpToken,
			Message:     fmt.Sprintf("unparseable token response: %v", err),
			UserMessage: "Răspunsul de autentificare ANAF nu a putut fi interpretat.",
			Retryable:   false,
			Raw:         string(body),
		}
	}
	if token.AccessToken == "" {
		return nil, &ClassifiedError{
			Category:    CategoryToken,
			Operation:   OpToken,
			Message:     "token response carried no access token",
			UserMessage: "ANAF nu a emis un token de acces.",
			Retryable:   false,
			Raw:         string(body),
		}
	}

	return &token, nil
}

func (p *ANAFProvider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBaseURL+"/hello", nil)
	if err != nil {
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	return resp.StatusCode < http.StatusInternalServerError
}

// mtlsClient builds a one-shot client presenting the taxpayer certificate as
// the TLS client identity. Clients are not cached: the certificate can be
// replaced or revoked between calls.
func (p *ANAFProvider) mtlsClient(cert *tls.Certificate) *http.Client {
	return &http.Client{
		Timeout: p.cfg.RequestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{*cert},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}
}

func (p *ANAFProvider) do(req *http.Request) ([]byte, int, time.Duration, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}

	return body, resp.StatusCode, parseRetryAfter(resp.Header), nil
}

func parseRetryAfter(h http.Header) time.Duration {
	value := h.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func joinUploadErrors(r uploadResponse) string {
	if len(r.Errors) == 0 {
		return fmt.Sprintf("upload rejected with ExecutionStatus=%d", r.ExecutionStatus)
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.ErrorMessage)
	}
	return strings.Join(msgs, "; ")
}

func joinStatusErrors(r statusResponse) string {
	if len(r.Errors) == 0 {
		return "document rejected by the authority"
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.ErrorMessage)
	}
	return strings.Join(msgs, "; ")
}
