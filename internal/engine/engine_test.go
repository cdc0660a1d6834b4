package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/flowlab/internal/document"
	"github.com/san-kum/flowlab/internal/runner"
)

func reservoirModel(inflow, initial, demand float64) *document.Document {
	return &document.Document{
		Metadata:    document.Metadata{Title: "reservoir"},
		Timestepper: document.Timestepper{Start: "2020-01-01", End: "2020-01-10"},
		Nodes: []document.Node{
			{Name: "supply", Type: document.NodeCatchment, Flow: document.Ref("inflow")},
			{Name: "reservoir", Type: document.NodeStorage, MaxVolume: document.Const(100), InitialVolume: &initial},
			{Name: "demand", Type: document.NodeOutput, MaxFlow: document.Const(demand)},
		},
		Edges: []document.Edge{{From: "supply", To: "reservoir"}, {From: "reservoir", To: "demand"}},
		Parameters: map[string]document.Parameter{
			"inflow": {Type: document.ParamConstant, Value: &inflow},
		},
		Recorders: map[string]document.Recorder{
			"volume":   {Type: document.RecorderStorage, Node: "reservoir"},
			"supplied": {Type: document.RecorderNode, Node: "demand"},
			"total":    {Type: document.RecorderTotalFlow, Node: "demand"},
			"deficit":  {Type: document.RecorderDeficit},
		},
	}
}

func stepN(m *Model, n int) {
	for i := 0; i < n; i++ {
		Expect(m.Step()).To(Succeed())
	}
}

var _ = Describe("Engine", func() {
	var (
		eng *Engine
		ctx context.Context
	)

	BeforeEach(func() {
		eng = New(nil)
		ctx = context.Background()
	})

	Describe("loading", func() {
		It("positions the timestepper at the first period", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(5, 50, 8), "")
			Expect(err).NotTo(HaveOccurred())

			ts := m.Timestepper()
			Expect(ts.Len()).To(Equal(10))
			Expect(ts.Current().Index).To(Equal(0))
			Expect(ts.Current().Period.Format(document.DateLayout)).To(Equal("2020-01-01"))
			Expect(m.RecorderNames()).To(Equal([]string{"deficit", "supplied", "total", "volume"}))
		})

		It("rejects invalid documents", func() {
			doc := reservoirModel(5, 50, 8)
			doc.Edges = append(doc.Edges, document.Edge{From: "demand", To: "ghost"})

			_, err := eng.Load(ctx, doc, "")
			Expect(err).To(MatchError(ErrInvalidModel))
			Expect(err).To(MatchError(document.ErrUnknownNode))
		})

		It("rejects cyclic networks", func() {
			doc := reservoirModel(5, 50, 8)
			doc.Nodes = append(doc.Nodes, document.Node{Name: "pump", Type: document.NodeLink})
			doc.Edges = append(doc.Edges,
				document.Edge{From: "demand", To: "pump"},
				document.Edge{From: "pump", To: "reservoir"})

			_, err := eng.Load(ctx, doc, "")
			Expect(err).To(MatchError(ErrCycle))
		})

		It("honours a cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := eng.Load(cctx, reservoirModel(5, 50, 8), "")
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})

		It("returns a nil interface on failure", func() {
			m, err := eng.Load(ctx, &document.Document{}, "")
			Expect(err).To(HaveOccurred())
			Expect(m).To(BeNil())
		})
	})

	Describe("stepping", func() {
		It("draws a reservoir down when demand exceeds inflow", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(5, 50, 8), "")
			Expect(err).NotTo(HaveOccurred())

			stepN(m, 3)
			vol, ok := m.Volume("reservoir")
			Expect(ok).To(BeTrue())
			Expect(vol).To(BeNumerically("~", 41, 1e-9))

			res := m.Results()
			Expect(res["volume"]).To(Equal([]float64{47, 44, 41}))
			Expect(res["supplied"]).To(Equal([]float64{8, 8, 8}))
			Expect(res["total"]).To(Equal([]float64{8, 16, 24}))
			Expect(res["deficit"]).To(Equal([]float64{0, 0, 0}))
			Expect(m.Periods()).To(HaveLen(3))
		})

		It("records a deficit once storage runs dry", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(0, 5, 8), "")
			Expect(err).NotTo(HaveOccurred())

			stepN(m, 2)
			Expect(m.Results()["deficit"]).To(Equal([]float64{3, 8}))
			Expect(m.Results()["volume"]).To(Equal([]float64{0, 0}))
		})

		It("caps storage at capacity", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(30, 95, 0), "")
			Expect(err).NotTo(HaveOccurred())

			stepN(m, 1)
			Expect(m.Results()["volume"]).To(Equal([]float64{100}))
		})

		It("serves cheaper demands first", func() {
			limit := 10.0
			doc := &document.Document{
				Timestepper: document.Timestepper{Start: "2020-01-01", End: "2020-01-03"},
				Nodes: []document.Node{
					{Name: "well", Type: document.NodeInput, MaxFlow: &document.Value{Const: &limit}},
					{Name: "town", Type: document.NodeOutput, MaxFlow: document.Const(8), Cost: document.Const(-10)},
					{Name: "farm", Type: document.NodeOutput, MaxFlow: document.Const(8), Cost: document.Const(-5)},
				},
				Edges: []document.Edge{{From: "well", To: "farm"}, {From: "well", To: "town"}},
				Recorders: map[string]document.Recorder{
					"town":      {Type: document.RecorderNode, Node: "town"},
					"farm":      {Type: document.RecorderNode, Node: "farm"},
					"farm_def":  {Type: document.RecorderDeficit, Node: "farm"},
					"all_short": {Type: document.RecorderDeficit},
				},
			}
			m, err := eng.LoadModel(ctx, doc, "")
			Expect(err).NotTo(HaveOccurred())

			stepN(m, 1)
			res := m.Results()
			Expect(res["town"]).To(Equal([]float64{8}))
			Expect(res["farm"]).To(Equal([]float64{2}))
			Expect(res["farm_def"]).To(Equal([]float64{6}))
			Expect(res["all_short"]).To(Equal([]float64{6}))
		})

		It("applies monthly profiles", func() {
			doc := reservoirModel(0, 50, 0)
			values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
			doc.Parameters["inflow"] = document.Parameter{Type: document.ParamMonthlyProfile, Values: values}
			doc.Timestepper = document.Timestepper{Start: "2020-01-31", End: "2020-02-02"}

			m, err := eng.LoadModel(ctx, doc, "")
			Expect(err).NotTo(HaveOccurred())
			stepN(m, 2)
			Expect(m.Results()["volume"]).To(Equal([]float64{52, 54}))
		})

		It("reads table columns relative to the base path", func() {
			dir := GinkgoT().TempDir()
			csv := "date,inflow\n2020-01-01,1\n2020-01-02,2\n2020-01-03,4\n"
			Expect(os.WriteFile(filepath.Join(dir, "flows.csv"), []byte(csv), 0644)).To(Succeed())

			doc := reservoirModel(0, 0, 0)
			doc.Tables = map[string]document.Table{"flows": {URL: "flows.csv", IndexCol: "date"}}
			doc.Parameters["inflow"] = document.Parameter{Type: document.ParamTableArray, Table: "flows", Column: "inflow"}

			m, err := eng.LoadModel(ctx, doc, dir)
			Expect(err).NotTo(HaveOccurred())
			stepN(m, 3)
			Expect(m.Results()["volume"]).To(Equal([]float64{2, 6, 10}))
		})

		It("fails to load a missing table", func() {
			doc := reservoirModel(0, 0, 0)
			doc.Tables = map[string]document.Table{"flows": {URL: "missing.csv"}}
			doc.Parameters["inflow"] = document.Parameter{Type: document.ParamTableArray, Table: "flows", Column: "inflow"}

			_, err := eng.LoadModel(ctx, doc, GinkgoT().TempDir())
			Expect(err).To(MatchError(ErrInvalidModel))
		})

		It("reports negative inflow as a balance error", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(-1, 50, 8), "")
			Expect(err).NotTo(HaveOccurred())

			err = m.Step()
			var balance *BalanceError
			Expect(errors.As(err, &balance)).To(BeTrue())
			Expect(balance.Node).To(Equal("supply"))
			Expect(balance.Index).To(Equal(1))
		})

		It("keeps periods and results aligned after a failed step", func() {
			doc := reservoirModel(5, 50, 8)
			values := []float64{5, 5, -1}
			doc.Parameters["inflow"] = document.Parameter{Type: document.ParamTableArray, Table: "flows", Column: "inflow"}
			dir := GinkgoT().TempDir()
			csv := "date,inflow\n"
			for i, v := range values {
				csv += fmt.Sprintf("2020-01-%02d,%g\n", i+1, v)
			}
			Expect(os.WriteFile(filepath.Join(dir, "flows.csv"), []byte(csv), 0644)).To(Succeed())
			doc.Tables = map[string]document.Table{"flows": {URL: "flows.csv", IndexCol: "date"}}

			m, err := eng.LoadModel(ctx, doc, dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Step()).NotTo(HaveOccurred())

			var balance *BalanceError
			Expect(errors.As(m.Step(), &balance)).To(BeTrue())
			Expect(balance.Index).To(Equal(2))
			Expect(m.Timestepper().Current().Index).To(Equal(1))
			Expect(m.Periods()).To(HaveLen(1))
			for name, series := range m.Results() {
				Expect(series).To(HaveLen(1), name)
			}
		})

		It("leaves no periods behind when the first step fails", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(-1, 50, 8), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Step()).To(HaveOccurred())
			Expect(m.Periods()).To(BeEmpty())
			Expect(m.Results()["volume"]).To(BeEmpty())
		})

		It("refuses to step past the end or after close", func() {
			m, err := eng.LoadModel(ctx, reservoirModel(5, 50, 8), "")
			Expect(err).NotTo(HaveOccurred())

			stepN(m, 9)
			Expect(m.Step()).To(MatchError(ErrPastEnd))

			Expect(m.Close()).To(Succeed())
			Expect(m.Step()).To(MatchError(ErrClosed))
			Expect(m.Results()["volume"]).To(HaveLen(9))
		})
	})

	Describe("under the run controller", func() {
		It("reports one progress event per period", func() {
			ctrl := runner.New(eng, nil)
			var indices []int
			Expect(ctrl.AddListener(runner.ListenerFuncs{
				Progress: func(p runner.Progress) { indices = append(indices, p.Index) },
			})).To(Succeed())

			Expect(ctrl.Start(ctx, reservoirModel(5, 50, 8), "")).To(Succeed())
			Expect(ctrl.Run()).To(Succeed())
			Expect(ctrl.Wait()).To(Succeed())

			Expect(indices).To(Equal([]int{1, 2, 3, 4, 5, 6, 7, 8, 9}))
			Expect(ctrl.Status().Outcome).To(Equal(runner.OutcomeCompleted))
		})
	})
})
