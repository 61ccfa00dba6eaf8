package publisher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/errors"
	"github.com/enku/gentoo-build-publisher/pkg/model"
	"github.com/enku/gentoo-build-publisher/pkg/publisher/status"
	"github.com/enku/gentoo-build-publisher/pkg/records"
	recordsstatus "github.com/enku/gentoo-build-publisher/pkg/records/status"
	"github.com/enku/gentoo-build-publisher/pkg/worker"
	workerstatus "github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

// Task names the publisher handles
const (
	TaskPull    = "pull"
	TaskPublish = "publish"
	TaskDelete  = "delete"
	TaskPrune   = "prune"
)

// PullTask builds the task that pulls one build from its artifact URL
func PullTask(build model.Build, url string) worker.Task {
	return worker.Task{Name: TaskPull, Args: map[string]string{
		"build": build.ID(),
		"url":   url,
	}}
}

// PublishTask builds the task that publishes one build
func PublishTask(build model.Build) worker.Task {
	return worker.Task{Name: TaskPublish, Args: map[string]string{"build": build.ID()}}
}

// DeleteTask builds the task that deletes one build
func DeleteTask(build model.Build) worker.Task {
	return worker.Task{Name: TaskDelete, Args: map[string]string{"build": build.ID()}}
}

// PruneTask builds the task that prunes one machine
func PruneTask(machine string) worker.Task {
	return worker.Task{Name: TaskPrune, Args: map[string]string{"machine": machine}}
}

// Handle dispatches orchestrator tasks onto publisher operations.
// Every task is idempotent, so at-least-once execution and reordering
// across worker backends are safe.
func (p *Publisher) Handle(ctx context.Context, task worker.Task) error {
	switch task.Name {
	case TaskPull:
		build, err := model.ParseBuild(task.Arg("build"))
		if err != nil {
			return err
		}
		url := task.Arg("url")
		if url == "" {
			return status.ErrNoArtifactURL.WrapMessage("%s", build.ID())
		}
		return p.Pull(ctx, build, url)
	case TaskPublish:
		build, err := model.ParseBuild(task.Arg("build"))
		if err != nil {
			return err
		}
		return p.Publish(build)
	case TaskDelete:
		build, err := model.ParseBuild(task.Arg("build"))
		if err != nil {
			return err
		}
		return p.Delete(ctx, build)
	case TaskPrune:
		machine := task.Arg("machine")
		if machine == "" {
			return workerstatus.ErrUnknownTask.WrapMessage("prune without machine")
		}
		_, err := p.Prune(ctx, machine)
		return err
	}
	return workerstatus.ErrUnknownTask.WrapMessage("%s", task.Name)
}

// RecordTaskFailure is the orchestrator failure sink: permanent task
// failures are counted and written into the build's record so they
// surface to operators instead of vanishing with the worker.
func (p *Publisher) RecordTaskFailure(task worker.Task, err error) {
	p.recorder.IncTaskFailure(task.Name)
	p.l.Error("task permanently failed", zap.Stringer("task", task), zap.Error(err))

	id := task.Arg("build")
	if id == "" {
		return
	}
	build, parseErr := model.ParseBuild(id)
	if parseErr != nil {
		return
	}
	rec, getErr := p.db.Get(build)
	if getErr != nil {
		if !errors.Is(getErr, recordsstatus.ErrRecordNotFound) {
			return
		}
		rec = records.BuildRecord{Build: build}
	}
	if rec.Logs != "" {
		rec.Logs += "\n"
	}
	rec.Logs += fmt.Sprintf("[%s] task %s failed: %v",
		time.Now().UTC().Format(time.RFC3339), task.Name, err)
	if _, saveErr := p.db.Save(rec); saveErr != nil {
		p.l.Warn("recording task failure failed",
			zap.String("build", id), zap.Error(saveErr))
	}
}
