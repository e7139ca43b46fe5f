package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"ticket-wallet/model"
)

const successCode = http.StatusOK

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

type loginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	RoleName     string `json:"roleName"`
	Status       string `json:"status"`
}

type registerResponse struct {
	Token   string `json:"token"`
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Login exchanges a username and password for an access token. Only an
// envelope code of 200 with a token and role counts as success.
func (c *Client) Login(ctx context.Context, username string, password string) (model.AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.AuthResult{}, errors.New("username and password are required")
	}
	endpoint := c.baseURL + "/auth/login"

	var res envelope[loginResult]
	err := c.doJSON(ctx, request{
		method:   http.MethodPost,
		endpoint: endpoint,
		body:     loginRequest{UserName: username, Password: password},
	}, &res)
	if err != nil {
		return model.AuthResult{}, err
	}
	if res.Code != successCode {
		message := res.Message
		if message == "" {
			message = "Login failed"
		}
		return model.AuthResult{}, &ServerError{
			StatusCode: http.StatusOK,
			Endpoint:   endpoint,
			Code:       res.Code,
			Message:    message,
		}
	}
	if res.Result.AccessToken == "" || res.Result.RoleName == "" {
		return model.AuthResult{}, &ServerError{
			StatusCode: http.StatusOK,
			Endpoint:   endpoint,
			Code:       res.Code,
			Message:    "login response is missing the access token or role",
		}
	}
	return model.AuthResult{
		AccessToken:  res.Result.AccessToken,
		RefreshToken: res.Result.RefreshToken,
		Role:         res.Result.RoleName,
		Status:       res.Result.Status,
	}, nil
}

// Register creates an account and returns the issued credentials.
func (c *Client) Register(ctx context.Context, registration model.Registration) (model.Credentials, error) {
	if missing := registration.Missing(); len(missing) > 0 {
		return model.Credentials{}, errors.New("missing required fields: " + strings.Join(missing, ", "))
	}
	endpoint := c.baseURL + "/auth/register"

	var res registerResponse
	err := c.doJSON(ctx, request{
		method:   http.MethodPost,
		endpoint: endpoint,
		body:     registration,
	}, &res)
	if err != nil {
		return model.Credentials{}, err
	}
	creds := model.Credentials{Token: res.Token, Role: res.Role}
	if !creds.Complete() {
		message := res.Message
		if message == "" {
			message = "registration response is missing the token or role"
		}
		return model.Credentials{}, &ServerError{
			StatusCode: http.StatusOK,
			Endpoint:   endpoint,
			Message:    message,
		}
	}
	return creds, nil
}

// CheckHealth probes the API with a bounded timeout. Any failure,
// including a non-2xx answer, is returned as an error.
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	return c.doJSON(ctx, request{
		method:   http.MethodGet,
		endpoint: c.baseURL + "/health",
	}, nil)
}
