// Package relayer exposes the HTTP surface: intent submission, resolver
// bidding, auction resolution and read-only swap lookups. Winning bids are
// handed to the coordinator over the task queue; this process never touches
// a chain itself.
package relayer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/auction"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/ledger"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/metrics"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/swap"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/tasks"
	"github.com/Ashar20/fusion-cross-chain-bridge-sub000/internal/util"
)

type Server struct {
	logger *logrus.Entry
	engine *auction.Engine
	swaps  ledger.Store
	queue  *asynq.Client
	echo   *echo.Echo
}

func NewServer(
	logger *logrus.Logger,
	engine *auction.Engine,
	swaps ledger.Store,
	queue *asynq.Client,
) *Server {
	s := &Server{
		logger: logger.WithField("pkg", "relayer"),
		engine: engine,
		swaps:  swaps,
		queue:  queue,
		echo:   echo.New(),
	}

	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(metrics.HTTPMiddleware())

	s.echo.POST("/intents", s.createIntent)
	s.echo.GET("/intents/:id", s.getIntent)
	s.echo.DELETE("/intents/:id", s.cancelIntent)
	s.echo.POST("/intents/:id/bids", s.submitBid)
	s.echo.POST("/intents/:id/auction", s.resolveAuction)
	s.echo.GET("/swaps/:id", s.getSwap)

	return s
}

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type createIntentRequest struct {
	MakerAsset          swap.Asset `json:"makerAsset"`
	TakerAsset          swap.Asset `json:"takerAsset"`
	MakerAmount         string     `json:"makerAmount"`
	TakerAmount         string     `json:"takerAmount"`
	CounterpartyAddress string     `json:"counterpartyAddress"`
	Deadline            time.Time  `json:"deadline"`
	AllowPartialFill    bool       `json:"allowPartialFill"`
	MinFillAmount       string     `json:"minFillAmount,omitempty"`
	PremiumBips         int64      `json:"premiumBips"`
	AuctionWindowSec    int64      `json:"auctionWindowSec"`
}

func (s *Server) createIntent(c echo.Context) error {
	var req createIntentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	makerAmount, err := util.ParseBigInt(req.MakerAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	takerAmount, err := util.ParseBigInt(req.TakerAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	minFill, err := util.ParseOptionalBigInt(req.MinFillAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	intent := &swap.Intent{
		MakerAsset:          req.MakerAsset,
		TakerAsset:          req.TakerAsset,
		MakerAmount:         makerAmount,
		TakerAmount:         takerAmount,
		CounterpartyAddress: req.CounterpartyAddress,
		Deadline:            req.Deadline,
		AllowPartialFill:    req.AllowPartialFill,
		MinFillAmount:       minFill,
		PremiumBips:         req.PremiumBips,
		AuctionWindow:       time.Duration(req.AuctionWindowSec) * time.Second,
	}
	if err := s.engine.CreateIntent(c.Request().Context(), intent); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, intent)
}

func (s *Server) getIntent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid intent id")
	}
	intent, err := s.engine.GetIntent(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, intent)
}

func (s *Server) cancelIntent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid intent id")
	}
	if err := s.engine.CancelIntent(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type submitBidRequest struct {
	ResolverID   string `json:"resolverId"`
	InputAmount  string `json:"inputAmount"`
	OutputAmount string `json:"outputAmount"`
	GasEstimate  string `json:"gasEstimate,omitempty"`
}

func (s *Server) submitBid(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid intent id")
	}

	var req submitBidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	input, err := util.ParseBigInt(req.InputAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	output, err := util.ParseBigInt(req.OutputAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	gas, err := util.ParseOptionalBigInt(req.GasEstimate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	bid := &swap.Bid{
		ResolverID:   req.ResolverID,
		InputAmount:  input,
		OutputAmount: output,
		GasEstimate:  gas,
	}
	if err := s.engine.SubmitBid(c.Request().Context(), id, bid); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, bid)
}

// resolveAuction selects the winning bid set and enqueues one execution
// task per winner.
func (s *Server) resolveAuction(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid intent id")
	}

	ctx := c.Request().Context()
	winners, err := s.engine.SelectWinners(ctx, id)
	if err != nil {
		return mapError(err)
	}

	for _, bid := range winners {
		task, er := tasks.NewSwapExecuteTask(id, *bid)
		if er != nil {
			return er
		}
		if _, er := s.queue.EnqueueContext(ctx, task); er != nil {
			s.logger.WithError(er).WithField("bidId", bid.ID.String()).
				Error("failed to enqueue swap execution")
			return echo.NewHTTPError(http.StatusBadGateway, "failed to enqueue swap execution")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"intentId": id.String(),
		"winners":  len(winners),
	}).Info("auction resolved, swaps enqueued")
	return c.JSON(http.StatusOK, winners)
}

func (s *Server) getSwap(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid swap id")
	}
	rec, err := s.swaps.GetSwap(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func mapError(err error) error {
	var ve *swap.ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.Is(err, swap.ErrIntentNotFound), errors.Is(err, swap.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, swap.ErrIntentExpired),
		errors.Is(err, swap.ErrIntentCancelled),
		errors.Is(err, swap.ErrRateBelowFloor),
		errors.Is(err, swap.ErrCancelNotAllowed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, swap.ErrNoEligibleBid):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return err
	}
}
