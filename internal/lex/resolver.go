package lex

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lexruntimev2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ca-srg/photosearch/internal/awserr"
)

var (
	// ErrNoInterpretation is returned when the bot produced no interpretation with an intent.
	ErrNoInterpretation = errors.New("lex returned no interpretation")
	// ErrSlotMissing is returned when the top interpretation has no value for the keyword slot.
	ErrSlotMissing = errors.New("lex interpretation has no keyword slot value")
)

type recognizeTextAPI interface {
	RecognizeText(ctx context.Context, params *lexruntimev2.RecognizeTextInput, optFns ...func(*lexruntimev2.Options)) (*lexruntimev2.RecognizeTextOutput, error)
}

// BotConfig identifies the bot, alias, locale and slot used to resolve keywords.
type BotConfig struct {
	BotID      string
	BotAliasID string
	LocaleID   string
	SlotName   string
}

// Resolver turns free text into a single search keyword through a Lex V2 bot.
type Resolver struct {
	client    recognizeTextAPI
	bot       BotConfig
	sessionID func() string
	logger    *zap.Logger
}

func NewResolver(awsConfig aws.Config, bot BotConfig, logger *zap.Logger) (*Resolver, error) {
	return newResolver(lexruntimev2.NewFromConfig(awsConfig), bot, logger)
}

func newResolver(client recognizeTextAPI, bot BotConfig, logger *zap.Logger) (*Resolver, error) {
	if bot.BotID == "" || bot.BotAliasID == "" {
		return nil, fmt.Errorf("lex bot id and alias id are required")
	}
	if bot.LocaleID == "" {
		bot.LocaleID = "en_US"
	}
	if bot.SlotName == "" {
		bot.SlotName = "SearchKeyword"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		client:    client,
		bot:       bot,
		sessionID: func() string { return uuid.NewString() },
		logger:    logger,
	}, nil
}

// ResolveKeyword sends text to the bot in a fresh session and returns the interpreted
// value of the keyword slot from the first interpretation.
func (r *Resolver) ResolveKeyword(ctx context.Context, text string) (string, error) {
	out, err := r.client.RecognizeText(ctx, &lexruntimev2.RecognizeTextInput{
		BotId:      aws.String(r.bot.BotID),
		BotAliasId: aws.String(r.bot.BotAliasID),
		LocaleId:   aws.String(r.bot.LocaleID),
		SessionId:  aws.String(r.sessionID()),
		Text:       aws.String(text),
	})
	if err != nil {
		return "", awserr.Wrap("lex", "RecognizeText", err)
	}

	if len(out.Interpretations) == 0 || out.Interpretations[0].Intent == nil {
		return "", ErrNoInterpretation
	}
	intent := out.Interpretations[0].Intent

	slot, ok := intent.Slots[r.bot.SlotName]
	if !ok || slot.Value == nil || slot.Value.InterpretedValue == nil {
		return "", fmt.Errorf("%w: intent %s, slot %s", ErrSlotMissing, aws.ToString(intent.Name), r.bot.SlotName)
	}

	keyword := aws.ToString(slot.Value.InterpretedValue)
	r.logger.Debug("resolved keyword",
		zap.String("text", text),
		zap.String("intent", aws.ToString(intent.Name)),
		zap.String("keyword", keyword))
	return keyword, nil
}
