package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func (s *Server) listEntitlements(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entitlements, err := s.entitlements.ListActiveByUser(c.Request.Context(), s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entitlements": entitlements})
}

func (s *Server) listPurchaseHistory(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	history, err := s.entitlements.ListHistoryByUser(c.Request.Context(), s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchases": history})
}

func (s *Server) getSubscriptionStatus(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	artistID, err := snowflake.ParseString(c.Param("artist_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.subscriptions.FindByUserArtist(c.Request.Context(), s.db, userID, artistID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if sub == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"has_access":   sub.HasAccess(s.clock.Now()),
	})
}

func (s *Server) listSubscriptions(c *gin.Context) {
	userID, err := snowflake.ParseString(c.Param("user_id"))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	subscriptions, err := s.subscriptions.ListByUser(c.Request.Context(), s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subscriptions})
}
