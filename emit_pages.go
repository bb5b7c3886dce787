package mgen

import (
	"bytes"
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/bokwoon95/mgen/stacktrace"
)

// emitPosts renders every post to its "by id" directory and copies the result
// to its "by date" directory.
func (gen *Generator) emitPosts() (int, error) {
	count := 0
	for _, post := range gen.index.All {
		body, err := gen.bodyHTML(post)
		if err != nil {
			return count, err
		}
		idFile := path.Join(gen.Resolver.PostIDDir(post), "index.html")
		err = gen.render(idFile, post.Template, PostData{
			Site: gen.Site,
			Post: post,
			Body: body,
		})
		if err != nil {
			return count, err
		}
		err = gen.fsys.Copy(idFile, path.Join(gen.Resolver.PostDateDir(post), "index.html"))
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// emitPageListings renders the pages of the global listing.
func (gen *Generator) emitPageListings() (int, error) {
	for _, page := range gen.index.Pages {
		err := gen.render(path.Join(gen.Resolver.PageDir(page.Number), "index.html"), ListingTemplate, gen.listingData(page, GroupKey{Kind: GroupAll}))
		if err != nil {
			return 0, err
		}
	}
	return len(gen.index.Pages), nil
}

// emitTagListings renders the pages of every tag listing. A tag is rendered
// with the template tag_{tag}.html when it exists.
func (gen *Generator) emitTagListings() (int, error) {
	count := 0
	for _, tag := range gen.index.TagNames {
		name := ListingTemplate
		if custom := "tag_" + tag + ".html"; gen.renderer.Has(custom) {
			name = custom
		}
		for _, page := range gen.index.TagPages[tag] {
			err := gen.render(path.Join(gen.Resolver.TagPageDir(tag, page.Number), "index.html"), name, gen.listingData(page, GroupKey{Kind: GroupTag, Tag: tag}))
			if err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// emitDateListings renders one listing per populated day and one per
// populated month. Date listings are never paginated.
func (gen *Generator) emitDateListings() (int, error) {
	count := 0
	for _, year := range gen.index.Years {
		for _, month := range gen.index.MonthsByPosts[year] {
			for _, day := range gen.index.Days(year, month) {
				page := PageOfPosts{Number: 1, Total: 1, Posts: gen.index.Dates[year][month][day]}
				filters := GroupKey{Kind: GroupDay, Year: year, Month: month, Day: day}
				err := gen.render(path.Join(DateDir(year, month, day), "index.html"), ListingTemplate, gen.listingData(page, filters))
				if err != nil {
					return count, err
				}
				count++
			}
			page := PageOfPosts{Number: 1, Total: 1, Posts: gen.index.MonthPosts(year, month)}
			filters := GroupKey{Kind: GroupMonth, Year: year, Month: month}
			err := gen.render(path.Join(DateDir(year, month, 0), "index.html"), ListingTemplate, gen.listingData(page, filters))
			if err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func (gen *Generator) listingData(page PageOfPosts, filters GroupKey) ListingData {
	return ListingData{
		Site:       gen.Site,
		Posts:      page.Posts,
		PageNumber: page.Number,
		TotalPages: page.Total,
		Filters:    filters,
		Pagination: NewPagination(page.Number, page.Total, visiblePageNumbers),
	}
}

// emitIndexes makes page 1 of the global and tag listings their landing
// pages and renders the root index. Missing page 1 files are skipped.
func (gen *Generator) emitIndexes() (int, error) {
	count := 0
	copies := [][2]string{{gen.Resolver.PageDir(1), PostsDir}}
	for _, tag := range gen.index.TagNames {
		copies = append(copies, [2]string{gen.Resolver.TagPageDir(tag, 1), gen.Resolver.TagDir(tag)})
	}
	for _, c := range copies {
		srcName, destName := path.Join(c[0], "index.html"), path.Join(c[1], "index.html")
		_, err := fs.Stat(gen.fsys, srcName)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return count, stacktrace.New(err)
		}
		err = gen.fsys.Copy(srcName, destName)
		if err != nil {
			return count, err
		}
		count++
	}
	err := gen.render(IndexTemplate, IndexTemplate, IndexData{
		Site:          gen.Site,
		Tags:          gen.index.Tags,
		TagNames:      gen.index.TagNames,
		Posts:         gen.index.Posts,
		Pages:         gen.index.Pages,
		Dates:         gen.index.Dates,
		Years:         gen.index.Years,
		MonthsByPosts: gen.index.MonthsByPosts,
	})
	if err != nil {
		return count, err
	}
	return count + 1, nil
}

// emitMisc renders every *.html file in the pages directory of the source
// tree to {name}/index.html and records name as a misc page.
func (gen *Generator) emitMisc() (int, error) {
	dirEntries, err := readDirIfExists(gen.SourceFS, SourcePagesDir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, dirEntry := range dirEntries {
		fileName := dirEntry.Name()
		if dirEntry.IsDir() || path.Ext(fileName) != ".html" {
			continue
		}
		text, err := readFile(gen.SourceFS, path.Join(SourcePagesDir, fileName))
		if err != nil {
			return count, err
		}
		name := strings.TrimSuffix(fileName, ".html")
		tmpl, err := gen.renderer.ParseStandalone(path.Join(SourcePagesDir, fileName), text)
		if err != nil {
			return count, err
		}
		buf := bufPool.Get().(*bytes.Buffer)
		err = Execute(buf, tmpl, MiscData{Site: gen.Site, Name: name})
		if err == nil {
			err = gen.writeFile(path.Join(name, "index.html"), buf.Bytes())
		}
		if buf.Cap() <= maxPoolableBufferCapacity {
			buf.Reset()
			bufPool.Put(buf)
		}
		if err != nil {
			return count, err
		}
		gen.miscPages = append(gen.miscPages, name)
		count++
	}
	return count, nil
}
