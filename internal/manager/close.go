package manager

// Close releases the loaded model and stops any spawned runtime process.
func (m *Manager) Close() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	sess := m.session
	cur := m.cur
	m.session = nil
	m.cur = nil
	m.state = StateEmpty
	m.mu.Unlock()

	var err error
	if sess != nil {
		err = sess.Close()
	}
	if sa, ok := m.adapter.(*llamaSubprocessAdapter); ok {
		sa.StopAll()
	}
	if cur != nil {
		m.publisher.Publish(Event{Name: "unload_done", ModelID: cur.ID, Fields: map[string]any{}})
	}
	return err
}
