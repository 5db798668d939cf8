package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	kgo "github.com/segmentio/kafka-go"

	vkafka "tori-vahti/internal/kafka"
	"tori-vahti/internal/models"
	"tori-vahti/mocks"
)

func TestProducerWriteRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := vkafka.NewProducerWithWriter(writer)

	job := models.WatchJob{
		RunID: "run-123",
		Watch: models.Watch{
			Name:         "Lautapelit",
			Keywords:     []string{"lautapeli"},
			AreaCode:     "111",
			TimespanSecs: 600,
		},
		EnqueuedAt: time.Unix(0, 0).UTC(),
	}

	writer.EXPECT().
		WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kgo.Message) error {
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if string(msgs[0].Key) != job.Watch.Name {
				t.Fatalf("unexpected message key: %s", string(msgs[0].Key))
			}

			var got models.WatchJob
			if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if got.RunID != job.RunID || got.Watch.Name != job.Watch.Name || got.Watch.TimespanSecs != job.Watch.TimespanSecs {
				t.Fatalf("unexpected job payload: %+v", got)
			}
			return nil
		})

	if err := prod.WriteRun(context.Background(), job); err != nil {
		t.Fatalf("WriteRun returned error: %v", err)
	}
}

func TestProducerWriteRunError(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	writer := mocks.NewMockMessageWriter(ctrl)
	prod := vkafka.NewProducerWithWriter(writer)

	job := models.WatchJob{RunID: "run-err", Watch: models.Watch{Name: "x"}}
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("write failed"))
	if err := prod.WriteRun(context.Background(), job); err == nil {
		t.Fatal("expected error, got nil")
	}
}
