package gpt2

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	nLayers    = 12
	nHeads     = 12
	headDim    = 64
	nPositions = 1024
	topK       = 5
)

// SharedLibraryPath returns the onnxruntime library named by the environment.
func SharedLibraryPath() string {
	return os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
}

// IntraOpNumThreads returns the thread count named by the environment, or 0.
func IntraOpNumThreads() int {
	n, err := strconv.Atoi(os.Getenv("ONNXRUNTIME_INTRA_OP_NUM_THREADS"))
	if err != nil {
		return 0
	}
	return n
}

// Model runs a GPT-2 ONNX export with a key value cache.
type Model struct {
	name        string
	deviceID    string
	vocabSize   int
	rng         *rand.Rand
	session     *ort.DynamicAdvancedSession
	inputNames  []string
	outputNames []string
}

// NewModel creates a model for the ONNX file name. An empty deviceID runs on the CPU.
func NewModel(name, deviceID string, vocabSize int, seed uint64) *Model {
	return &Model{
		name:      name,
		deviceID:  deviceID,
		vocabSize: vocabSize,
		rng:       rand.New(rand.NewPCG(seed, 1)),
	}
}

// Init loads the runtime and creates the session.
func (m *Model) Init() error {
	ort.SetSharedLibraryPath(SharedLibraryPath())
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return errors.Wrap(err, "initializing onnxruntime")
		}
	}

	m.inputNames = []string{"input_ids", "position_ids", "attention_mask"}
	m.outputNames = []string{"logits"}
	for i := range nLayers {
		m.inputNames = append(m.inputNames, fmt.Sprintf("past_key_values.%d.key", i), fmt.Sprintf("past_key_values.%d.value", i))
		m.outputNames = append(m.outputNames, fmt.Sprintf("present.%d.key", i), fmt.Sprintf("present.%d.value", i))
	}

	options, err := sessionOptions(m.deviceID)
	if err != nil {
		return err
	}
	defer options.Destroy()

	if n := IntraOpNumThreads(); n > 0 {
		if err := options.SetIntraOpNumThreads(n); err != nil {
			return err
		}
	}

	s, err := ort.NewDynamicAdvancedSession(m.name, m.inputNames, m.outputNames, options)
	if err != nil {
		return errors.Wrapf(err, "loading %s", m.name)
	}
	m.session = s
	return nil
}

func sessionOptions(deviceID string) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	if deviceID == "" {
		return options, nil
	}
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		options.Destroy()
		return nil, err
	}
	defer cuda.Destroy()
	if err := cuda.Update(map[string]string{"device_id": deviceID}); err != nil {
		options.Destroy()
		return nil, err
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

// Destroy releases the session and the runtime.
func (m *Model) Destroy() error {
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	return ort.DestroyEnvironment()
}

// Generate samples up to steps tokens after prompt from the top k
// candidates, stopping early after stop. It returns the new tokens only.
func (m *Model) Generate(prompt []int64, steps int64, stop int64) ([]int64, error) {
	if len(prompt) == 0 {
		return nil, errors.New("empty prompt")
	}
	if int64(len(prompt))+steps > nPositions {
		return nil, errors.Errorf("%d tokens exceed the context of %d", int64(len(prompt))+steps, nPositions)
	}

	n := int64(len(prompt))
	out := make([]int64, 0, steps)

	cache := initCache()
	outputs, err := m.forward(prompt, 0, cache)
	destroyValues(cache)
	if err != nil {
		return nil, err
	}
	defer func() { destroyValues(outputs) }()

	for step := range steps {
		l := m.lastLogits(outputs[0])
		next := m.sample(l)
		out = append(out, next)
		if next == stop || step == steps-1 {
			break
		}
		o, err := m.forward([]int64{next}, n+step, outputs[1:])
		if err != nil {
			return nil, err
		}
		destroyValues(outputs)
		outputs = o
	}
	return out, nil
}

func (m *Model) lastLogits(output ort.Value) []float32 {
	d := output.(*ort.Tensor[float32]).GetData()
	return d[len(d)-m.vocabSize:]
}

func (m *Model) sample(logits []float32) int64 {
	idx, p := top(softmax(logits), topK)
	r := m.rng.Float32()
	var total float32
	for _, v := range p {
		total += v
	}
	r *= total
	for i, v := range p {
		r -= v
		if r < 0 {
			return int64(idx[i])
		}
	}
	return int64(idx[len(idx)-1])
}

func (m *Model) forward(tokens []int64, start int64, cache []ort.Value) ([]ort.Value, error) {
	binding, err := m.session.CreateIoBinding()
	if err != nil {
		return nil, err
	}
	defer binding.Destroy()

	inputs, err := initInputs(tokens, start)
	if err != nil {
		return nil, err
	}
	defer destroyValues(inputs)

	outputs, err := initOutputs(tokens, start, m.vocabSize)
	if err != nil {
		return nil, err
	}

	all := append(inputs[:len(inputs):len(inputs)], cache...)
	for i, name := range m.inputNames {
		if err := binding.BindInput(name, all[i]); err != nil {
			destroyValues(outputs)
			return nil, err
		}
	}
	for i, name := range m.outputNames {
		if err := binding.BindOutput(name, outputs[i]); err != nil {
			destroyValues(outputs)
			return nil, err
		}
	}
	if err := m.session.RunWithBinding(binding); err != nil {
		destroyValues(outputs)
		return nil, err
	}
	return outputs, nil
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		_ = v.Destroy()
	}
}

func initCache() []ort.Value {
	values := make([]ort.Value, 0, 2*nLayers)
	shape := ort.NewShape(1, nHeads, 0, headDim)
	for range nLayers {
		k, _ := ort.NewEmptyTensor[float32](shape)
		v, _ := ort.NewEmptyTensor[float32](shape)
		values = append(values, ort.Value(k), ort.Value(v))
	}
	return values
}

func initInputs(tokens []int64, start int64) ([]ort.Value, error) {
	n := int64(len(tokens))
	ids, err := ort.NewTensor(ort.NewShape(1, n), tokens)
	if err != nil {
		return nil, err
	}
	positions := make([]int64, n)
	for i := range positions {
		positions[i] = start + int64(i)
	}
	pos, err := ort.NewTensor(ort.NewShape(1, n), positions)
	if err != nil {
		ids.Destroy()
		return nil, err
	}
	mask := make([]int64, start+n)
	for i := range mask {
		mask[i] = 1
	}
	att, err := ort.NewTensor(ort.NewShape(1, start+n), mask)
	if err != nil {
		ids.Destroy()
		pos.Destroy()
		return nil, err
	}
	return []ort.Value{ids, pos, att}, nil
}

func initOutputs(tokens []int64, start int64, vocabSize int) ([]ort.Value, error) {
	outputs := make([]ort.Value, 0, 1+2*nLayers)
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(tokens)), int64(vocabSize)))
	if err != nil {
		return nil, err
	}
	outputs = append(outputs, logits)
	shape := ort.NewShape(1, nHeads, start+int64(len(tokens)), headDim)
	for range nLayers {
		k, _ := ort.NewEmptyTensor[float32](shape)
		v, _ := ort.NewEmptyTensor[float32](shape)
		outputs = append(outputs, ort.Value(k), ort.Value(v))
	}
	return outputs, nil
}

func softmax(logits []float32) []float32 {
	m := slices.Max(logits)
	var s float32
	r := make([]float32, len(logits))
	for i, v := range logits {
		e := float32(math.Exp(float64(v - m)))
		r[i] = e
		s += e
	}
	for i := range r {
		r[i] /= s
	}
	return r
}

func top(p []float32, k int) ([]int, []float32) {
	k = min(k, len(p))
	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return p[idx[i]] > p[idx[j]]
	})
	topP := make([]float32, k)
	for i := range topP {
		topP[i] = p[idx[i]]
	}
	return idx[:k], topP
}
