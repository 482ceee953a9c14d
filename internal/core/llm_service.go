package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"
	defaultTitleModelName     = "gemini-1.5-flash-latest"

	chatSystemInstruction = "You are a Policy Agent AI specialized in answering questions about legal documents " +
		"such as terms and conditions, policies, agreements, and contracts. " +
		"Answer based on the provided document context when it is present. " +
		"If a question needs specific document content and none is provided, say: " +
		"\"Please provide the document content to answer this question accurately.\" " +
		"Give balanced answers, covering benefits and risks of a policy where applicable. " +
		"Decline questions outside the legal domain. " +
		"Maintain a professional, neutral tone and explain legal terms simply. " +
		"Do not speculate beyond the provided documents or general legal knowledge."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."
)

// ChatTurn is one prior exchange in a conversation, already mapped to the
// model's role vocabulary ("user" or "model").
type ChatTurn struct {
	Role    string
	Content string
}

// Generator produces answers and titles from a language model.
type Generator interface {
	Generate(ctx context.Context, history []ChatTurn, prompt string) (string, error)
	GenerateTitle(ctx context.Context, basis string) (string, error)
}

// LLMService wraps the shared Gemini client. The client is created once at
// startup and injected; it is stateless per call and safe for concurrent
// use. LLMService implements both Embedder and Generator.
type LLMService struct {
	client *genai.Client
}

func NewLLMService(ctx context.Context, apiKey string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		}
	}
}

func (s *LLMService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embedding request failed: %v", ErrModelUnavailable, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received from gemini", ErrModelUnavailable)
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini batch embedding request failed: %v", ErrModelUnavailable, err)
	}
	return batchEmbeddingVectors(res, len(texts))
}

// batchEmbeddingVectors validates a batch response and unpacks one vector
// per requested input.
func batchEmbeddingVectors(res *genai.BatchEmbedContentsResponse, want int) ([][]float32, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: gemini returned no batch embedding response", ErrModelUnavailable)
	}
	if len(res.Embeddings) != want {
		return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts", ErrModelUnavailable, len(res.Embeddings), want)
	}

	vectors := make([][]float32, want)
	for i, embedding := range res.Embeddings {
		if embedding == nil || len(embedding.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding for input %d", ErrModelUnavailable, i)
		}
		vectors[i] = embedding.Values
	}
	return vectors, nil
}

func (s *LLMService) Generate(ctx context.Context, history []ChatTurn, prompt string) (string, error) {
	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	chatSession := model.StartChat()
	for _, turn := range history {
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  turn.Role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	resp, err := chatSession.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: gemini chat SendMessage failed: %v", ErrModelUnavailable, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Println("Gemini response was empty or had no valid candidates/parts.")
		return "I'm sorry, I couldn't generate a response at this time. Please try again.", nil
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		log.Println("Gemini response part was not text or was empty after processing.")
		return "I received an empty or non-text response, please try rephrasing your question.", nil
	}

	return strings.TrimSpace(responseText.String()), nil
}

func (s *LLMService) GenerateTitle(ctx context.Context, basis string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	userPromptForTitle := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: %q.", basis)

	resp, err := model.GenerateContent(ctx, genai.Text(userPromptForTitle))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "Chat", fmt.Errorf("LLM did not generate a title (empty response)")
	}

	var titleText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			titleText.WriteString(string(txt))
		}
	}

	if titleText.Len() == 0 {
		return "Chat", fmt.Errorf("LLM generated an empty title string")
	}

	return strings.Trim(titleText.String(), "\"'\n\r\t ."), nil
}
