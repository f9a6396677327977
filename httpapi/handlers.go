package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oarkflow/accessguard"
)

// CheckAccess answers whether the caller may run an operation on an
// entity under the active restrictions.
func (s *Server) CheckAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		model := c.Param("model")
		op := c.Param("op")
		outcome, err := s.engine.Check(c.Request.Context(), identity(c), model, op)
		if err != nil {
			var denied *accessguard.AccessDeniedError
			if errors.As(err, &denied) {
				c.JSON(http.StatusForbidden, gin.H{"outcome": string(outcome), "error": denied.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
	}
}

// AccessDomain returns the record filter the caller's restrictions
// impose on an operation.
func (s *Server) AccessDomain() gin.HandlerFunc {
	return func(c *gin.Context) {
		model := c.Param("model")
		op := c.Param("op")
		dom, err := s.engine.RecordDomain(c.Request.Context(), identity(c), model, op)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"domain": dom})
	}
}

// RewriteView applies the caller's view restrictions to an XML view
// definition and returns the rewritten markup.
func (s *Server) RewriteView() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Arch string `json:"arch" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out, err := s.engine.RewriteView(c.Request.Context(), identity(c), c.Param("model"), c.Param("type"), input.Arch)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"arch": out})
	}
}

// DiscoverNodes scans the combined views of an entity and registers
// every hideable element.
func (s *Server) DiscoverNodes() gin.HandlerFunc {
	return func(c *gin.Context) {
		created, err := s.engine.DiscoverViewNodes(c.Request.Context(), c.Param("model"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"created": created})
	}
}

// VisibleMenus filters a list of menu ids down to the ones the caller
// may see.
func (s *Server) VisibleMenus() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			MenuIDs []string `json:"menu_ids"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		visible, err := s.engine.VisibleMenus(c.Request.Context(), identity(c), input.MenuIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"menu_ids": visible})
	}
}

// FilterBindings drops restricted action and report bindings.
func (s *Server) FilterBindings() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			Bindings []accessguard.ActionBinding `json:"bindings"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kept, err := s.engine.FilterBindings(c.Request.Context(), identity(c), c.Param("model"), input.Bindings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bindings": kept})
	}
}

// FilterActionViews drops restricted view types from an action load;
// every view filtered away is an access error.
func (s *Server) FilterActionViews() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			ViewTypes []string `json:"view_types"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		kept, err := s.engine.FilterActionViews(c.Request.Context(), identity(c), c.Param("model"), input.ViewTypes)
		if err != nil {
			var denied *accessguard.AccessDeniedError
			if errors.As(err, &denied) {
				c.JSON(http.StatusForbidden, gin.H{"error": denied.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"view_types": kept})
	}
}

func (s *Server) ListRuleSets() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := s.engine.ListRuleSets(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rule_sets": out})
	}
}

func (s *Server) CreateRuleSet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rs accessguard.RuleSet
		if err := c.ShouldBindJSON(&rs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.engine.CreateRuleSet(c.Request.Context(), &rs); err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"rule_set": rs})
	}
}

func (s *Server) UpdateRuleSet() gin.HandlerFunc {
	return func(c *gin.Context) {
		var rs accessguard.RuleSet
		if err := c.ShouldBindJSON(&rs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rs.ID = c.Param("id")
		if err := s.engine.UpdateRuleSet(c.Request.Context(), &rs); err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rule_set": rs})
	}
}

func (s *Server) DeleteRuleSet() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.engine.DeleteRuleSet(c.Request.Context(), c.Param("id")); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func writeStoreError(c *gin.Context, err error) {
	var verr *accessguard.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
