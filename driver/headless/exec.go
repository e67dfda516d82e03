package headless

import (
	"encoding/binary"

	"github.com/andewx/dieselrhi/driver"
	"github.com/cockroachdb/errors"
)

type batch struct {
	cbs     []*commandBuffer
	waits   []*semaphore
	signals []*semaphore
	fence   *fence
	refs    []*object

	present *swapchain
	image   int
}

type queue struct {
	d       *device
	typ     driver.QueueType
	family  int
	pending []*batch
}

func (q *queue) Type() driver.QueueType { return q.typ }
func (q *queue) Family() int            { return q.family }

func (q *queue) Submit(sub driver.Submission) error {
	b := q.d.b
	bt := &batch{}
	seen := make(map[*object]struct{})
	hold := func(o *object) {
		if _, ok := seen[o]; ok {
			return
		}
		seen[o] = struct{}{}
		o.inflight++
		bt.refs = append(bt.refs, o)
	}
	for _, c := range sub.CommandBuffers {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return errors.Wrap(driver.ErrInvalid, "headless: foreign command buffer")
		}
		if cb.state != cbExecutable {
			b.violate("%s submitted in state %d", &cb.object, cb.state)
		}
		if cb.pool.queue != q.typ {
			b.violate("%s from a %s pool submitted to %s", &cb.object, cb.pool.queue, q.typ)
		}
		cb.state = cbPending
		hold(&cb.object)
		for o := range cb.refs {
			if o.destroyed {
				b.violate("%s submitted referencing destroyed %s", &cb.object, o)
			}
			hold(o)
		}
		bt.cbs = append(bt.cbs, cb)
	}
	for _, w := range sub.Waits {
		s := w.Semaphore.(*semaphore)
		hold(&s.object)
		bt.waits = append(bt.waits, s)
	}
	for _, sig := range sub.Signals {
		s := sig.(*semaphore)
		hold(&s.object)
		bt.signals = append(bt.signals, s)
	}
	if sub.Fence != nil {
		f := sub.Fence.(*fence)
		if f.signaled {
			b.violate("%s submitted while signaled", &f.object)
		}
		hold(&f.object)
		bt.fence = f
	}
	q.pending = append(q.pending, bt)
	b.stats.Submits++
	b.emit(EventSubmit, nil, q.typ)
	return nil
}

func (q *queue) Present(sc driver.Swapchain, index int, waits []driver.Semaphore) error {
	hs := sc.(*swapchain)
	b := q.d.b
	if index < 0 || index >= len(hs.images) || !hs.acquired[index] {
		b.violate("present of image %d which was not acquired", index)
		return errors.Wrapf(driver.ErrInvalid, "headless: present image %d", index)
	}
	hs.acquired[index] = false
	bt := &batch{present: hs, image: index}
	for _, w := range waits {
		s := w.(*semaphore)
		s.inflight++
		bt.refs = append(bt.refs, &s.object)
		bt.waits = append(bt.waits, s)
	}
	hs.inflight++
	bt.refs = append(bt.refs, &hs.object, &hs.images[index].object)
	hs.images[index].inflight++
	q.pending = append(q.pending, bt)

	switch {
	case b.outOfDate:
		return errors.WithStack(driver.ErrOutOfDate)
	case b.suboptimal:
		return errors.WithStack(driver.ErrSuboptimal)
	}
	return nil
}

// run executes every batch whose waits are satisfied, in queue order,
// until no queue can make progress.
func (d *device) run() {
	if d.b.hang {
		return
	}
	for progress := true; progress; {
		progress = false
		for _, q := range d.queues {
			for len(q.pending) > 0 && q.pending[0].ready() {
				bt := q.pending[0]
				q.pending = q.pending[1:]
				d.execute(q, bt)
				progress = true
			}
		}
	}
}

func (bt *batch) ready() bool {
	for _, s := range bt.waits {
		if !s.signaled {
			return false
		}
	}
	return true
}

func (d *device) execute(q *queue, bt *batch) {
	b := d.b
	for _, s := range bt.waits {
		s.signaled = false
	}
	if bt.present != nil {
		img := bt.present.images[bt.image]
		if !img.destroyed && img.layout != driver.LayoutPresent {
			b.violate("%s presented in layout %s", &img.object, img.layout)
		}
		b.stats.Presents++
		b.emit(EventPresent, &img.object, q.typ)
	}
	for _, cb := range bt.cbs {
		ex := executor{d: d, cb: cb}
		ex.run()
		cb.state = cbExecutable
	}
	// a submission boundary is a full memory dependency
	for r := range d.dirty {
		r.write = nil
		delete(d.dirty, r)
	}
	for _, s := range bt.signals {
		s.signal()
	}
	for _, o := range bt.refs {
		o.inflight--
	}
	b.stats.Executed++
	b.emit(EventExecute, nil, q.typ)
	if bt.fence != nil {
		bt.fence.signaled = true
		b.emit(EventFenceSignal, &bt.fence.object, q.typ)
	}
}

// executor replays one command buffer.
type executor struct {
	d        *device
	cb       *commandBuffer
	pipeline *pipeline
	vertex   []*buffer
	index    *buffer
	sets     map[uint32]*descriptorSet
}

func (ex *executor) run() {
	ex.sets = make(map[uint32]*descriptorSet)
	for i := range ex.cb.ops {
		o := &ex.cb.ops[i]
		switch o.kind {
		case opBarrier:
			ex.barrier(o)
		case opBeginRendering:
			for _, img := range o.colors {
				ex.layout(img, "color attachment", driver.LayoutColorTarget)
				ex.access(&img.resource, driver.SyncColorOutput, driver.AccessColorWrite, true)
			}
			if o.depth != nil {
				ex.layout(o.depth, "depth attachment", driver.LayoutDSTarget)
				ex.access(&o.depth.resource, driver.SyncDSOutput, driver.AccessDSWrite, true)
			}
		case opEndRendering:
		case opBindPipeline:
			ex.pipeline = o.pipeline
		case opBindVertex:
			ex.vertex = o.bufs
		case opBindIndex:
			ex.index = o.bufs[0]
		case opBindSet:
			ex.sets[o.set] = o.ds
		case opDraw, opDrawIndexed:
			ex.draw(o.kind == opDrawIndexed)
		case opCopy:
			ex.copyBuffer(o)
		case opFill:
			ex.fill(o)
		case opCopyToImage:
			ex.copyToImage(o)
		}
	}
}

func (ex *executor) alive(o *object) bool {
	if o.destroyed {
		ex.d.b.violate("%s executed using destroyed %s", &ex.cb.object, o)
		return false
	}
	return true
}

func (ex *executor) layout(img *image, use string, want driver.Layout) {
	if img.layout != want && img.layout != driver.LayoutGeneral {
		ex.d.b.violate("%s used as %s in layout %s, want %s", &img.object, use, img.layout, want)
	}
}

// access checks one read or write of r against its last write and records
// new writes.
func (ex *executor) access(r *resource, stage driver.Sync, acc driver.Access, write bool) {
	if w := r.write; w != nil {
		if !w.visible || !w.visStage.Covers(stage) || !w.visAccess.Covers(acc) {
			kind := "read-after-write"
			if write {
				kind = "write-after-write"
			}
			ex.d.b.violate("%s hazard on %s: write at stage %d not visible to stage %d", kind, &r.object, w.stage, stage)
		}
	}
	if write {
		r.write = &pendingWrite{stage: stage, access: acc}
		ex.d.dirty[r] = struct{}{}
	}
}

func (ex *executor) makeVisible(r *resource, b driver.Barrier) {
	w := r.write
	if w == nil {
		return
	}
	if b.SyncBefore.Covers(w.stage) && b.AccessBefore.Covers(w.access) {
		w.visible = true
		w.visStage |= b.SyncAfter
		w.visAccess |= b.AccessAfter
	}
}

func (ex *executor) barrier(o *op) {
	for _, m := range o.mem {
		for r := range ex.d.dirty {
			ex.makeVisible(r, m)
		}
	}
	for _, bb := range o.buf {
		buf := bb.Buffer.(*buffer)
		if ex.alive(&buf.object) {
			ex.makeVisible(&buf.resource, bb.Barrier)
		}
	}
	for _, ib := range o.img {
		img := ib.Image.(*image)
		if !ex.alive(&img.object) {
			continue
		}
		ex.makeVisible(&img.resource, ib.Barrier)
		if ib.LayoutBefore != driver.LayoutUndefined && ib.LayoutBefore != img.layout {
			ex.d.b.violate("%s transitioned from %s but is in %s", &img.object, ib.LayoutBefore, img.layout)
		}
		img.layout = ib.LayoutAfter
	}
}

func (ex *executor) draw(indexed bool) {
	b := ex.d.b
	if ex.pipeline == nil || !ex.alive(&ex.pipeline.object) {
		return
	}
	for _, vb := range ex.vertex {
		if ex.alive(&vb.object) {
			ex.access(&vb.resource, driver.SyncVertexInput, driver.AccessVertexRead, false)
		}
	}
	if indexed {
		if ex.index == nil {
			b.violate("%s: indexed draw without index buffer", &ex.cb.object)
		} else if ex.alive(&ex.index.object) {
			ex.access(&ex.index.resource, driver.SyncVertexInput, driver.AccessIndexRead, false)
		}
	}
	for _, ds := range ex.sets {
		if !ex.alive(&ds.object) {
			continue
		}
		for _, bd := range ds.bound {
			if bd.res == nil || !ex.alive(&bd.res.object) {
				continue
			}
			stage := shaderSync(bd.stages)
			switch bd.kind {
			case driver.DescUniformBuffer:
				ex.access(bd.res, stage, driver.AccessUniformRead, false)
			case driver.DescStorageBuffer, driver.DescStorageImage:
				ex.access(bd.res, stage, driver.AccessShaderRead, false)
			case driver.DescSampledImage, driver.DescCombinedImageSampler:
				ex.layout(bd.img, "sampled image", driver.LayoutShaderRead)
				ex.access(bd.res, stage, driver.AccessShaderRead, false)
			}
		}
	}
	b.stats.Draws++
}

func shaderSync(s driver.ShaderStage) driver.Sync {
	var out driver.Sync
	if s&driver.StageVertex != 0 {
		out |= driver.SyncVertexShading
	}
	if s&driver.StageFragment != 0 {
		out |= driver.SyncFragmentShading
	}
	if s&driver.StageCompute != 0 {
		out |= driver.SyncComputeShading
	}
	return out
}

func (ex *executor) copyBuffer(o *op) {
	if !ex.alive(&o.src.object) || !ex.alive(&o.dst.object) {
		return
	}
	ex.access(&o.src.resource, driver.SyncCopy, driver.AccessCopyRead, false)
	ex.access(&o.dst.resource, driver.SyncCopy, driver.AccessCopyWrite, true)
	for _, r := range o.regions {
		if r.SrcOffset+r.Size > uint64(len(o.src.data)) || r.DstOffset+r.Size > uint64(len(o.dst.data)) {
			ex.d.b.violate("copy region [%d+%d -> %d] out of bounds", r.SrcOffset, r.Size, r.DstOffset)
			continue
		}
		copy(o.dst.data[r.DstOffset:r.DstOffset+r.Size], o.src.data[r.SrcOffset:r.SrcOffset+r.Size])
	}
	ex.d.b.stats.Copies++
}

func (ex *executor) fill(o *op) {
	if !ex.alive(&o.dst.object) {
		return
	}
	ex.access(&o.dst.resource, driver.SyncCopy, driver.AccessCopyWrite, true)
	size := o.size
	if size == 0 {
		size = uint64(len(o.dst.data)) - o.offset
	}
	if o.offset%4 != 0 || size%4 != 0 || o.offset+size > uint64(len(o.dst.data)) {
		ex.d.b.violate("fill [%d+%d) misaligned or out of bounds", o.offset, size)
		return
	}
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], o.value)
	for i := o.offset; i < o.offset+size; i += 4 {
		copy(o.dst.data[i:i+4], word[:])
	}
}

func (ex *executor) copyToImage(o *op) {
	if !ex.alive(&o.src.object) || !ex.alive(&o.dstImg.object) {
		return
	}
	img := o.dstImg
	ex.layout(img, "copy destination", driver.LayoutCopyDst)
	ex.access(&o.src.resource, driver.SyncCopy, driver.AccessCopyRead, false)
	ex.access(&img.resource, driver.SyncCopy, driver.AccessCopyWrite, true)
	r := o.region
	if r.Level != 0 {
		return
	}
	texel := img.desc.Format.Size()
	row := int(r.Width) * texel
	if int(r.X)+int(r.Width) > img.desc.Width || int(r.Y)+int(r.Height) > img.desc.Height {
		ex.d.b.violate("image copy region out of bounds for %s", &img.object)
		return
	}
	if r.BufferOffset+uint64(row)*uint64(r.Height) > uint64(len(o.src.data)) {
		ex.d.b.violate("image copy reads past end of %s", &o.src.object)
		return
	}
	layer := r.Layer * img.desc.Width * img.desc.Height * texel
	for y := 0; y < int(r.Height); y++ {
		src := int(r.BufferOffset) + y*row
		dst := layer + ((int(r.Y)+y)*img.desc.Width+int(r.X))*texel
		copy(img.data[dst:dst+row], o.src.data[src:src+row])
	}
	ex.d.b.stats.Copies++
}
