package service

import (
	"certify_backend/internal/model"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Courses []model.CatalogCourse `yaml:"courses"`
}

// CatalogService 课程目录，配置变更时整体替换
type CatalogService struct {
	mu      sync.RWMutex
	courses map[string]model.CatalogCourse
}

func NewCatalogService(courses []model.CatalogCourse) *CatalogService {
	s := &CatalogService{}
	s.replace(courses)
	return s
}

// LoadCatalog 从 YAML 文件加载课程目录
func LoadCatalog(path string) (*CatalogService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	courses, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	return NewCatalogService(courses), nil
}

// Reload 重新读取目录文件，解析失败时保留旧目录
func (s *CatalogService) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	courses, err := ParseCatalog(data)
	if err != nil {
		return err
	}
	s.replace(courses)
	return nil
}

func ParseCatalog(data []byte) ([]model.CatalogCourse, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Courses))
	for i, c := range f.Courses {
		if c.Slug == "" || c.Title == "" {
			return nil, fmt.Errorf("catalog entry %d: slug and title are required", i)
		}
		if seen[c.Slug] {
			return nil, fmt.Errorf("catalog entry %d: duplicate slug %q", i, c.Slug)
		}
		seen[c.Slug] = true
	}
	return f.Courses, nil
}

func (s *CatalogService) replace(courses []model.CatalogCourse) {
	m := make(map[string]model.CatalogCourse, len(courses))
	for _, c := range courses {
		m[c.Slug] = c
	}
	s.mu.Lock()
	s.courses = m
	s.mu.Unlock()
}

func (s *CatalogService) Get(slug string) (model.CatalogCourse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[slug]
	return c, ok
}

func (s *CatalogService) List() []model.CatalogCourse {
	s.mu.RLock()
	out := make([]model.CatalogCourse, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}
