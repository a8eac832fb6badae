package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/courtvision/analysis-client/internal/domain/entity"
	miniostorage "github.com/courtvision/analysis-client/internal/infra/minio"
	"github.com/courtvision/analysis-client/internal/infra/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// runSubmit stores a video in the worker's bucket and queues a request for it.
func runSubmit(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	user := fs.String("user", a.cfg.UserID, "owner of the analysis")
	mail := fs.String("email", "", "address notified on permanent failure")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: analyzer submit -user <id> [-email addr] <file>")
		return errUsage
	}

	file, err := entity.VideoFileFromPath(fs.Arg(0))
	if err != nil {
		return err
	}
	if err := a.cfg.VideoRules().Validate(file); err != nil {
		fmt.Fprintln(os.Stderr, entity.UserMessage(err))
		return errUsage
	}

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      a.cfg.MinIOEndpoint,
		AccessKey:     a.cfg.MinIOAccessKey,
		SecretKey:     a.cfg.MinIOSecretKey,
		UseSSL:        a.cfg.MinIOUseSSL,
		VideoBucket:   a.cfg.MinIOVideoBucket,
		ArchiveBucket: a.cfg.MinIOArchiveBucket,
	})
	if err != nil {
		return err
	}

	f, err := file.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	requestID := uuid.New()
	key := path.Join(*user, requestID.String(), file.Name)
	if err := storage.PutVideo(ctx, key, f, file.Size, file.ContentType()); err != nil {
		return err
	}

	msg := entity.AnalysisRequestMessage{
		RequestID: requestID,
		UserID:    *user,
		VideoKey:  key,
		FileName:  file.Name,
		FileSize:  file.Size,
		UserEmail: *mail,
		Mode:      entity.AnalysisMode(a.cfg.APIMode),
	}
	if team := a.cfg.TeamParams(); team != nil {
		msg.JerseyColor, msg.TeamSide = team.JerseyColor, team.TeamSide
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	conn, err := amqp.Dial(a.cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()
	pub, err := rabbitmq.NewPublisher(conn, a.cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.PublishRequest(ctx, a.cfg.RabbitMQRequestKey, body); err != nil {
		return err
	}
	fmt.Printf("queued %s (request %s)\n", key, requestID)
	return nil
}
