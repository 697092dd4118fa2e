package main

import (
	"flag"
	"fmt"
	"math/rand"
	"runtime"
	"strings"

	"k8s.io/klog/v2"

	"captioning/pkg/model"
	"captioning/pkg/tensor"
	"captioning/pkg/vocab"
)

// demoWords is used when no vocabulary file is given.
var demoWords = []string{
	vocab.NullToken, vocab.StartToken, vocab.EndToken,
	"a", "an", "the", "man", "woman", "dog", "cat", "bird", "horse",
	"sitting", "standing", "riding", "eating", "on", "in", "with", "near",
	"grass", "table", "street", "beach", "bench", "field", "red", "small",
}

func main() {
	klog.InitFlags(nil)

	vocabPath := flag.String("vocab", "", "Vocabulary file with one \"token id\" pair per line (default: built-in demo vocabulary)")
	batch := flag.Int("batch", 2, "Number of feature vectors to caption")
	inputDim := flag.Int("input-dim", 64, "Width of the image feature vectors")
	embedDim := flag.Int("embed-dim", 32, "Model dimension")
	numHeads := flag.Int("heads", 4, "Number of attention heads")
	numLayers := flag.Int("layers", 2, "Number of decoder layers")
	ffDim := flag.Int("ff-dim", 128, "Hidden width of the feed-forward network")
	maxLength := flag.Int("max-length", 16, "Number of tokens to sample")
	seed := flag.Int64("seed", 1, "Seed for weights and features")
	workers := flag.Int("workers", runtime.GOMAXPROCS(0), "Goroutines used for matrix products")

	flag.Parse()
	defer klog.Flush()

	vocabulary, err := loadVocabulary(*vocabPath)
	if err != nil {
		klog.Fatalf("Failed to load vocabulary: %v", err)
	}

	cfg := model.DefaultConfig(*inputDim, *embedDim)
	cfg.NumHeads = *numHeads
	cfg.NumLayers = *numLayers
	cfg.FeedForwardDim = *ffDim
	cfg.MaxLength = *maxLength
	cfg.Seed = *seed

	decoder, err := model.New(cfg, vocabulary, &tensor.Compute{Workers: *workers})
	if err != nil {
		klog.Fatalf("Failed to build decoder: %v", err)
	}
	decoder.SetTraining(false)

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("           Transformer Caption Sampling")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("  Vocab Size:  %d\n", vocabulary.Size())
	fmt.Printf("  Input Dim:   %d\n", cfg.InputDim)
	fmt.Printf("  Embed Dim:   %d\n", cfg.EmbedDim)
	fmt.Printf("  Num Heads:   %d\n", cfg.NumHeads)
	fmt.Printf("  Num Layers:  %d\n", cfg.NumLayers)
	fmt.Printf("  Max Length:  %d\n", cfg.MaxLength)
	fmt.Printf("  Parameters:  %d\n", decoder.NumParameters())
	fmt.Println("Note: weights are randomly initialized, captions are not meaningful")
	fmt.Println()

	features := randomFeatures(*seed, *batch, cfg.InputDim)
	captions, err := decoder.Sample(features, cfg.MaxLength)
	if err != nil {
		klog.Fatalf("Failed to sample captions: %v", err)
	}

	for i, ids := range captions {
		fmt.Printf("[%d] ids:     %v\n", i, ids)
		fmt.Printf("[%d] caption: %q\n", i, vocabulary.DecodeString(ids))
	}
}

func loadVocabulary(path string) (*vocab.Vocabulary, error) {
	if path == "" {
		return vocab.New(demoWords)
	}
	klog.V(1).InfoS("Loading vocabulary", "path", path)
	return vocab.Load(path)
}

// randomFeatures stands in for the output of an image encoder.
func randomFeatures(seed int64, batch, dim int) *tensor.Tensor {
	rng := rand.New(rand.NewSource(seed + 1))
	features := tensor.NewTensor([]int{batch, dim})
	for i := range features.Data {
		features.Data[i] = float32(rng.NormFloat64())
	}
	return features
}
