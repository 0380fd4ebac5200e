package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// Node names a step of the graph.
type Node string

const (
	NodeStart       Node = "start"
	NodeRouter      Node = "router"
	NodeConversion  Node = "conversion"
	NodeRecognition Node = "recognition"
	NodeExtraction  Node = "extraction"
	NodeValidation  Node = "validation"
	NodeError       Node = "error"
	NodeEnd         Node = "end"
)

// Run drives a state through the graph until End and returns the final state.
// Failures end up in the returned state's Err, never as a panic.
func (g *Graph) Run(ctx context.Context, st State) State {
	logCtx := slog.With("operation", st.Operation, "requesterId", st.Requester.ID)
	logCtx.Info("Starting pipeline run.", "documentId", st.DocumentID, "description", DescribeOperation(st.Operation))
	started := time.Now()

	node := NodeStart
	for node != NodeEnd {
		var next Node
		st, next = g.step(ctx, node, st)
		logCtx.Debug("Node finished.", "node", node, "next", next)
		node = next
	}

	if st.Err != nil {
		logCtx.Error("Pipeline run failed.", "documentId", st.DocumentID, "kind", KindOf(st.Err), "error", st.Err, "elapsed", time.Since(started).String())
	} else {
		logCtx.Info("Pipeline run complete.", "documentId", st.DocumentID, "elapsed", time.Since(started).String())
	}
	return st
}

// step runs one node and picks the next one. After every working node the
// only branch is to Error when the state carries an error. A panicking node
// is turned into a Fatal error so the document still ends in Error.
func (g *Graph) step(ctx context.Context, node Node, st State) (out State, next Node) {
	in := st
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		slog.Error("Node panicked.", "node", node, "documentId", in.DocumentID, "panic", rec, "stack", string(debug.Stack()))
		out, next = in.WithErr(fatalError("", fmt.Sprintf("error interno: %v", recovered(rec)), nil)), NodeError
		if node == NodeError {
			next = NodeEnd
		}
	}()

	switch node {
	case NodeStart:
		st, next = g.start(st), NodeRouter
	case NodeRouter:
		entry, doc, err := g.router.Route(ctx, st)
		if err != nil {
			return st.WithErr(err), NodeError
		}
		st, next = st.hydrate(doc), entry
	case NodeConversion:
		st, next = g.convert(ctx, st), NodeRecognition
	case NodeRecognition:
		st, next = g.recognize(ctx, st), NodeExtraction
	case NodeExtraction:
		st, next = g.extract(ctx, st), NodeValidation
	case NodeValidation:
		st, next = g.validate(ctx, st), NodeEnd
	case NodeError:
		g.fail(ctx, st)
		return st, NodeEnd
	default:
		return st.WithErr(fatalError("", "nodo desconocido: "+string(node), nil)), NodeError
	}
	if st.Err != nil {
		return st, NodeError
	}
	return st, next
}

// recovered strips the errgroup wrapper, whose text carries the goroutine stack.
func recovered(rec any) any {
	switch v := rec.(type) {
	case errgroup.PanicValue:
		return v.Recovered
	case errgroup.PanicError:
		return v.Recovered
	}
	return rec
}

// start validates the request and resolves the tenant.
func (g *Graph) start(st State) State {
	if st.Requester.ID == "" {
		return st.WithErr(invalidRequest("falta el solicitante"))
	}
	if st.Operation == "" {
		return st.WithErr(invalidRequest("falta la operación"))
	}
	if st.DocumentID == "" && st.Operation != models.OperationCompleteProcess {
		return st.WithErr(invalidRequest("falta el id del documento"))
	}
	return st.WithTenant(g.deps.Tenants.TenantForEmail(st.Requester.Email))
}

// fail marks the document as failed and tells the requester. It never fails
// itself, and it still writes when the run was cancelled.
func (g *Graph) fail(ctx context.Context, st State) {
	ctx = context.WithoutCancel(ctx)
	logCtx := slog.With("documentId", st.DocumentID, "operation", st.Operation)
	message := "error desconocido"
	if st.Err != nil {
		message = st.Err.Error()
	}
	logCtx.Error("Processing failed.", "kind", KindOf(st.Err), "error", st.Err)

	r := g.reporter(st, logCtx)
	if st.DocumentID != "" && KindOf(st.Err) != KindNotFound {
		if err := g.deps.Store.Update(ctx, st.DocumentID, models.Patch{
			"status":        models.StatusError,
			"error_message": message,
		}); err != nil {
			logCtx.Error("CRITICAL: Failed to update status to Error after a processing error.", "updateError", err)
		}
	}
	r.push(ctx, models.StatusEvent{ID: st.DocumentID, Status: models.StatusError, ErrorMessage: message})
}

// stageLogger returns the logger of a stage.
func stageLogger(st State, stage string) *slog.Logger {
	return slog.With("documentId", st.DocumentID, "operation", st.Operation, "stage", stage)
}
