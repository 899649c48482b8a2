package service

import (
	"crypto/subtle"
	"errors"
	"time"

	cfg "github.com/scrapbook/monthbook/configs"
	"github.com/scrapbook/monthbook/pkg/utils"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPassword = errors.New("invalid password")

const SessionDuration = 7 * 24 * time.Hour

type AuthService interface {
	// Login checks the admin password and returns a signed session token.
	Login(password string) (string, error)
}

type authService struct {
	cfg cfg.Config
}

func NewAuthService(cfg cfg.Config) AuthService {
	return &authService{cfg: cfg}
}

func (s *authService) Login(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}

	if s.cfg.AdminPasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(password)); err != nil {
			return "", ErrInvalidPassword
		}
	} else {
		if s.cfg.AdminPassword == "" {
			return "", ErrInvalidPassword
		}
		if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.AdminPassword)) != 1 {
			return "", ErrInvalidPassword
		}
	}

	return utils.GenerateToken(s.cfg.SecretKey, SessionDuration)
}
