package remote

import "io"

type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	progress ProgressFunc
}

// NewProgressWriter wraps w and reports cumulative bytes written
func NewProgressWriter(w io.Writer, total int64, progress ProgressFunc) io.Writer {
	if progress == nil {
		return w
	}
	return &progressWriter{w: w, total: total, progress: progress}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.written += int64(n)
		p.progress(p.written, p.total)
	}
	return n, err
}

type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	progress ProgressFunc
}

// NewProgressReader wraps r and reports cumulative bytes read
func NewProgressReader(r io.Reader, total int64, progress ProgressFunc) io.Reader {
	if progress == nil {
		return r
	}
	return &progressReader{r: r, total: total, progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.progress(p.read, p.total)
	}
	return n, err
}

// seekSize returns the size of content and rewinds it
func seekSize(content io.Seeker) (int64, error) {
	size, err := content.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return size, nil
}
