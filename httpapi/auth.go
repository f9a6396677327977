package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/oarkflow/accessguard"
)

// User is one account in the host user directory.
type User struct {
	ID           string
	Email        string
	Name         string
	CompanyID    string
	PasswordHash string
	Active       bool
}

// UserDirectory resolves accounts for authentication.
type UserDirectory interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
}

// Claims represents the JWT claims structure.
type Claims struct {
	UserID    string `json:"uid"`
	CompanyID string `json:"cid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// LoginHandler authenticates the user and returns a JWT. The rule
// engine is consulted first so a disabled-login restriction rejects the
// attempt before any credential work.
func (s *Server) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := s.users.UserByEmail(c.Request.Context(), input.Email)
		if err != nil || !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}

		ident := accessguard.Identity{UserID: user.ID, CompanyID: user.CompanyID}
		if err := s.engine.CheckLogin(c.Request.Context(), ident); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID:    user.ID,
			CompanyID: user.CompanyID,
			Email:     user.Email,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			},
		})
		tokenString, err := token.SignedString([]byte(s.secret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
			return
		}

		c.SetCookie("token", tokenString, 3600*24, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{
			"token": tokenString,
			"user":  gin.H{"email": user.Email, "name": user.Name, "company_id": user.CompanyID},
		})
	}
}

// JWT validates tokens from the Authorization header or the "token"
// cookie and stores the claims in the request context.
func (s *Server) JWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("Authorization")
		if tokenStr == "" {
			if cookie, err := c.Cookie("token"); err == nil {
				tokenStr = "Bearer " + cookie
			}
		}
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

		token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.secret), nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(*Claims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}

		user, err := s.users.UserByID(c.Request.Context(), claims.UserID)
		if err != nil || !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// identity pulls the rule-engine identity out of the verified claims.
func identity(c *gin.Context) accessguard.Identity {
	claims, _ := c.Get("claims")
	cl := claims.(*Claims)
	return accessguard.Identity{UserID: cl.UserID, CompanyID: cl.CompanyID}
}

// DebugRedirect strips developer-mode query parameters for users whose
// rules disable them, redirecting to the same URL without the flag.
func (s *Server) DebugRedirect() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Request.URL.Query()
		if !q.Has("debug") || q.Get("debug") == "" || q.Get("debug") == "0" {
			c.Next()
			return
		}
		if s.engine.DebugAllowed(c.Request.Context(), identity(c)) {
			c.Next()
			return
		}
		q.Del("debug")
		u := *c.Request.URL
		u.RawQuery = q.Encode()
		c.Redirect(http.StatusSeeOther, u.String())
		c.Abort()
	}
}
